package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/your-org/pixelmind/internal/models"
)

func ptr[T any](v T) *T { return &v }

func TestAssetUpdateColumns(t *testing.T) {
	tests := []struct {
		name     string
		update   models.AssetUpdate
		wantSet  []string
		wantArgs []any
	}{
		{
			name: "empty",
		},
		{
			name:     "scalar fields are numbered in order",
			update:   models.AssetUpdate{Width: ptr(640), Height: ptr(480), SceneType: ptr("beach")},
			wantSet:  []string{"width = $1", "height = $2", "scene_type = $3"},
			wantArgs: []any{640, 480, "beach"},
		},
		{
			name:     "location expands to two columns",
			update:   models.AssetUpdate{Location: &models.GeoPoint{Latitude: 1.5, Longitude: -2.5}},
			wantSet:  []string{"latitude = $1", "longitude = $2"},
			wantArgs: []any{1.5, -2.5},
		},
		{
			name:     "status is written as text",
			update:   models.AssetUpdate{ProcessingStatus: ptr(models.StatusPartial), ProcessingError: ptr("")},
			wantSet:  []string{"processing_status = $1", "processing_error = $2"},
			wantArgs: []any{"partial", ""},
		},
		{
			name:     "empty slices still overwrite",
			update:   models.AssetUpdate{Labels: []string{}},
			wantSet:  []string{"labels = $1"},
			wantArgs: []any{[]string{}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, args := assetUpdateColumns(tt.update)
			if fmt.Sprint(set) != fmt.Sprint(tt.wantSet) {
				t.Errorf("set = %v, want %v", set, tt.wantSet)
			}
			if fmt.Sprint(args) != fmt.Sprint(tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 50}, {-1, 50}, {10, 10}, {500, 500}, {501, 500},
	}
	for _, tt := range tests {
		if got := clampLimit(tt.in); got != tt.want {
			t.Errorf("clampLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMemoryAssets(t *testing.T) {
	ctx := context.Background()

	Convey("Given a store with three assets for two owners", t, func() {
		s := NewMemoryStore()
		for _, a := range []models.MediaAsset{
			{ID: "a1", OwnerID: "alice", BlobKey: "k1"},
			{ID: "a2", OwnerID: "alice", BlobKey: "k2"},
			{ID: "b1", OwnerID: "bob", BlobKey: "k3"},
		} {
			So(s.CreateAsset(ctx, &a), ShouldBeNil)
		}

		Convey("New assets start pending with timestamps", func() {
			a, err := s.GetAsset(ctx, "a1")
			So(err, ShouldBeNil)
			So(a.ProcessingStatus, ShouldEqual, models.StatusPending)
			So(a.CreatedAt.IsZero(), ShouldBeFalse)
		})

		Convey("Duplicate ids are rejected", func() {
			So(s.CreateAsset(ctx, &models.MediaAsset{ID: "a1"}), ShouldNotBeNil)
		})

		Convey("Missing assets are nil without error", func() {
			a, err := s.GetAsset(ctx, "nope")
			So(err, ShouldBeNil)
			So(a, ShouldBeNil)
		})

		Convey("Listing is per owner and newest first", func() {
			page, total, err := s.ListAssets(ctx, "alice", 10, 0)
			So(err, ShouldBeNil)
			So(total, ShouldEqual, 2)
			So(page[0].ID, ShouldEqual, "a2")
			So(page[1].ID, ShouldEqual, "a1")

			page, total, _ = s.ListAssets(ctx, "alice", 1, 1)
			So(total, ShouldEqual, 2)
			So(page, ShouldHaveLength, 1)
			So(page[0].ID, ShouldEqual, "a1")

			page, _, _ = s.ListAssets(ctx, "alice", 10, 5)
			So(page, ShouldBeEmpty)
		})

		Convey("Updates merge and unknown ids report ErrNotFound", func() {
			So(s.UpdateAsset(ctx, "a1", models.AssetUpdate{Camera: ptr("Canon EOS R5")}), ShouldBeNil)
			So(s.UpdateAsset(ctx, "a1", models.AssetUpdate{Width: ptr(10)}), ShouldBeNil)
			a, _ := s.GetAsset(ctx, "a1")
			So(a.Camera, ShouldEqual, "Canon EOS R5")
			So(a.Width, ShouldEqual, 10)
			So(a.BlobKey, ShouldEqual, "k1")

			So(errors.Is(s.UpdateAsset(ctx, "zz", models.AssetUpdate{}), ErrNotFound), ShouldBeTrue)
		})

		Convey("Only trusted hashed assets are listed for grouping", func() {
			complete, partial, failed := models.StatusComplete, models.StatusPartial, models.StatusFailed
			So(s.UpdateAsset(ctx, "a1", models.AssetUpdate{PerceptualHash: ptr("0101"), ProcessingStatus: &complete}), ShouldBeNil)
			So(s.UpdateAsset(ctx, "a2", models.AssetUpdate{PerceptualHash: ptr("0110"), ProcessingStatus: &failed}), ShouldBeNil)
			So(s.UpdateAsset(ctx, "b1", models.AssetUpdate{PerceptualHash: ptr("1111"), ProcessingStatus: &partial}), ShouldBeNil)

			hashes, err := s.ListHashes(ctx, "alice")
			So(err, ShouldBeNil)
			So(hashes, ShouldHaveLength, 1)
			So(hashes[0].ID, ShouldEqual, "a1")
		})
	})
}

func TestMemoryPeople(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty person registry", t, func() {
		s := NewMemoryStore()
		p := &models.Person{ID: uuid.New(), OwnerID: "alice", Centroid: []float32{1, 0}, CreatedAt: time.Now()}

		Convey("Version 0 inserts and advances both versions", func() {
			So(s.UpsertPerson(ctx, p, 0), ShouldBeNil)
			So(p.Version, ShouldEqual, 1)

			got, err := s.GetPerson(ctx, p.ID)
			So(err, ShouldBeNil)
			So(got.Centroid, ShouldResemble, []float32{1, 0})

			reg, err := s.LoadRegistry(ctx, "alice")
			So(err, ShouldBeNil)
			So(reg.Version, ShouldEqual, 1)
			So(reg.People, ShouldHaveLength, 1)
		})

		Convey("A second insert of the same id conflicts", func() {
			So(s.UpsertPerson(ctx, p, 0), ShouldBeNil)
			dup := &models.Person{ID: p.ID, OwnerID: "alice"}
			So(s.UpsertPerson(ctx, dup, 1), ShouldEqual, models.ErrClusteringConflict)
		})

		Convey("A stale version conflicts", func() {
			So(s.UpsertPerson(ctx, p, 0), ShouldBeNil)
			stale := p.Clone()

			p.FaceCount = 2
			So(s.UpsertPerson(ctx, p, 1), ShouldBeNil)
			So(p.Version, ShouldEqual, 2)

			stale.FaceCount = 9
			So(s.UpsertPerson(ctx, stale, 2), ShouldEqual, models.ErrClusteringConflict)

			got, _ := s.GetPerson(ctx, p.ID)
			So(got.FaceCount, ShouldEqual, 2)
		})

		Convey("An insert based on a stale registry read conflicts", func() {
			seen, err := s.LoadRegistry(ctx, "alice")
			So(err, ShouldBeNil)
			So(seen.People, ShouldBeEmpty)

			// another writer lands first
			So(s.UpsertPerson(ctx, p, seen.Version), ShouldBeNil)

			late := &models.Person{ID: uuid.New(), OwnerID: "alice", Centroid: []float32{1, 0}}
			So(s.UpsertPerson(ctx, late, seen.Version), ShouldEqual, models.ErrClusteringConflict)

			people, _ := s.ListPeople(ctx, "alice")
			So(people, ShouldHaveLength, 1)
		})

		Convey("Registries are versioned per owner", func() {
			So(s.UpsertPerson(ctx, p, 0), ShouldBeNil)
			bob := &models.Person{ID: uuid.New(), OwnerID: "bob", Centroid: []float32{0, 1}}
			So(s.UpsertPerson(ctx, bob, 0), ShouldBeNil)
		})

		Convey("Returned people do not alias stored state", func() {
			So(s.UpsertPerson(ctx, p, 0), ShouldBeNil)
			people, err := s.ListPeople(ctx, "alice")
			So(err, ShouldBeNil)
			people[0].Centroid[0] = 42

			again, _ := s.ListPeople(ctx, "alice")
			So(again[0].Centroid[0], ShouldEqual, float32(1))
		})

		Convey("People are listed per owner", func() {
			So(s.UpsertPerson(ctx, p, 0), ShouldBeNil)
			people, _ := s.ListPeople(ctx, "bob")
			So(people, ShouldBeEmpty)
		})
	})
}
