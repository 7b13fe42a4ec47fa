package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	Convey("Given a minimal config file", t, func() {
		path := writeConfig(t, `
database:
  host: db
  name: pixelmind
  user: pm
  password: secret
nats:
  url: nats://nats:4222
minio:
  endpoint: minio:9000
  bucket: media
`)

		Convey("When it is loaded", func() {
			cfg, err := Load(path)

			Convey("Then defaults are applied", func() {
				So(err, ShouldBeNil)
				So(cfg.Server.Port, ShouldEqual, 8080)
				So(cfg.Server.MetricsPort, ShouldEqual, 8082)
				So(cfg.Database.Port, ShouldEqual, 5432)
				So(cfg.NATS.AckWait, ShouldEqual, 2*time.Minute)
				So(cfg.Vision.Backend, ShouldEqual, "onnx")
				So(cfg.Pipeline.ThumbnailSize, ShouldEqual, 400)
				So(cfg.Pipeline.ThumbnailQuality, ShouldEqual, 80)
				So(cfg.Pipeline.GroupingThreshold, ShouldEqual, 10)
				So(cfg.Pipeline.ClusterThreshold, ShouldEqual, 0.6)
				So(cfg.Pipeline.MaxPersonSamples, ShouldEqual, 50)
				So(cfg.Logging.Format, ShouldEqual, "json")
				So(cfg.Database.DSN(), ShouldEqual, "postgres://pm:secret@db:5432/pixelmind?sslmode=disable")
			})
		})
	})

	Convey("Given invalid settings", t, func() {
		Convey("An unknown backend is rejected", func() {
			_, err := Load(writeConfig(t, "vision:\n  backend: tensorflow\n"))
			So(err, ShouldNotBeNil)
		})

		Convey("An out of range grouping threshold is rejected", func() {
			_, err := Load(writeConfig(t, "pipeline:\n  grouping_threshold: 65\n"))
			So(err, ShouldNotBeNil)
		})

		Convey("Malformed YAML is rejected", func() {
			_, err := Load(writeConfig(t, "server: [port"))
			So(err, ShouldNotBeNil)
		})

		Convey("A missing file is rejected", func() {
			_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
			So(err, ShouldNotBeNil)
		})
	})
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "database:\n  host: db\n")
	t.Setenv("PM_SERVER_PORT", "9090")
	t.Setenv("PM_DB_HOST", "other-db")
	t.Setenv("PM_VISION_BACKEND", "disabled")
	t.Setenv("PM_CLUSTER_THRESHOLD", "0.45")
	t.Setenv("PM_CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("PM_WORKER_COUNT", "not-a-number")

	Convey("Given environment overrides", t, func() {
		cfg, err := Load(path)

		Convey("Then they win over the file", func() {
			So(err, ShouldBeNil)
			So(cfg.Server.Port, ShouldEqual, 9090)
			So(cfg.Database.Host, ShouldEqual, "other-db")
			So(cfg.Vision.Backend, ShouldEqual, "disabled")
			So(cfg.Pipeline.ClusterThreshold, ShouldEqual, 0.45)
			So(cfg.Server.CORSOrigins, ShouldResemble, []string{"http://a.test", "http://b.test"})
			So(cfg.Vision.WorkerCount, ShouldEqual, 4)
		})
	})
}
