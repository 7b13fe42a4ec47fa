package labels

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/your-org/pixelmind/internal/imaging"
)

type stubDetector struct {
	dets []Detection
	err  error
}

func (s stubDetector) Detect(context.Context, *imaging.PixelBuffer) ([]Detection, error) {
	return s.dets, s.err
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func TestLabelPersonAndDog(t *testing.T) {
	l := NewLabeler(stubDetector{dets: []Detection{
		{Class: "person", Score: 0.9},
		{Class: "dog", Score: 0.7},
	}})

	res, err := l.Label(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"person", "dog", "people", "portrait", "pet", "animal"} {
		if !contains(res.Labels, want) {
			t.Errorf("labels %v missing %q", res.Labels, want)
		}
	}
	if res.SceneType != SceneGeneral {
		t.Errorf("scene = %q; want %q", res.SceneType, SceneGeneral)
	}
}

func TestLabelGroupPhoto(t *testing.T) {
	l := NewLabeler(nil)
	res := l.Expand([]Detection{
		{Class: "person", Score: 0.9},
		{Class: "person", Score: 0.8},
		{Class: "Person", Score: 0.6},
		{Class: "dog", Score: 0.7},
	})
	if res.PersonCount != 3 {
		t.Errorf("person count = %d; want 3", res.PersonCount)
	}
	if res.SceneType != SceneGroupPhoto {
		t.Errorf("scene = %q; want %q", res.SceneType, SceneGroupPhoto)
	}
	if strings.Count(strings.Join(res.Labels, ","), "person") != 1 {
		t.Errorf("labels %v should hold person once", res.Labels)
	}
}

func TestExpandConfidenceFilter(t *testing.T) {
	res := NewLabeler(nil).Expand([]Detection{
		{Class: "cat", Score: 0.5},
		{Class: "car", Score: 0.51},
	})
	if contains(res.Labels, "cat") || contains(res.Labels, "pet") {
		t.Errorf("labels %v: score 0.5 must be dropped", res.Labels)
	}
	if !contains(res.Labels, "car") || !contains(res.Labels, "vehicle") || !contains(res.Labels, "transportation") {
		t.Errorf("labels %v missing car expansion", res.Labels)
	}
	if res.SceneType != SceneAutomotive {
		t.Errorf("scene = %q; want %q", res.SceneType, SceneAutomotive)
	}
}

func TestExpandCap(t *testing.T) {
	var dets []Detection
	for class := range contextRules {
		dets = append(dets, Detection{Class: class, Score: 0.9})
	}
	for i := 0; i < 30; i++ {
		dets = append(dets, Detection{Class: fmt.Sprintf("thing-%d", i), Score: 0.9})
	}

	res := NewLabeler(nil).Expand(dets)
	if len(res.Labels) != DefaultMaxLabels {
		t.Errorf("len(labels) = %d; want %d", len(res.Labels), DefaultMaxLabels)
	}
	seen := map[string]bool{}
	for _, l := range res.Labels {
		if seen[l] {
			t.Errorf("duplicate label %q", l)
		}
		seen[l] = true
	}
}

func TestClassifyScenePriority(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		people int
		want   string
	}{
		{"beach beats everything", []string{"surfboard", "cake", "car"}, 5, SceneBeach},
		{"mountain", []string{"skis", "person"}, 1, SceneMountain},
		{"birthday before dining", []string{"cake", "food", "wine glass"}, 0, SceneBirthday},
		{"dining", []string{"pizza", "food"}, 0, SceneDining},
		{"group photo", []string{"person", "people"}, 4, SceneGroupPhoto},
		{"pets", []string{"cat", "pet", "animal"}, 0, ScenePets},
		{"pet with owner", []string{"cat", "pet", "person"}, 1, SceneGeneral},
		{"automotive", []string{"truck", "vehicle"}, 0, SceneAutomotive},
		{"nature", []string{"potted plant", "plant", "nature"}, 0, SceneNature},
		{"general", []string{"laptop", "indoor"}, 0, SceneGeneral},
		{"empty", nil, 0, SceneGeneral},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyScene(tc.labels, tc.people); got != tc.want {
				t.Errorf("ClassifyScene(%v, %d) = %q; want %q", tc.labels, tc.people, got, tc.want)
			}
		})
	}
}

func TestLabelErrors(t *testing.T) {
	if _, err := NewLabeler(nil).Label(context.Background(), nil); !errors.Is(err, ErrNoDetector) {
		t.Errorf("expected ErrNoDetector, got %v", err)
	}

	boom := errors.New("boom")
	if _, err := NewLabeler(stubDetector{err: boom}).Label(context.Background(), nil); !errors.Is(err, boom) {
		t.Errorf("expected wrapped detector error, got %v", err)
	}
}
