package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/facepulse/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*2)
			convey.So(cfg.StabilityWindow, convey.ShouldEqual, 2)
			convey.So(cfg.EARThreshold, convey.ShouldEqual, 0.25)
			convey.So(cfg.LeaderboardSmileThreshold, convey.ShouldEqual, 80)
			convey.So(cfg.RankingBackend, convey.ShouldEqual, "memory")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the duration helpers convert units", func() {
			convey.So(cfg.PollInterval(), convey.ShouldEqual, 200*time.Millisecond)
			convey.So(cfg.CaptureCooldown(), convey.ShouldEqual, time.Second)
			convey.So(cfg.AbsenceTimeout(), convey.ShouldEqual, 1500*time.Millisecond)
			convey.So(cfg.ReactionCaptureTimeout(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.ChallengeDuration(), convey.ShouldEqual, 30*time.Second)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs that break one constraint each", t, func() {
		cases := []struct {
			name   string
			mutate func(c *config.Config)
		}{
			{"stability_window", func(c *config.Config) { c.StabilityWindow = 0 }},
			{"ear_threshold", func(c *config.Config) { c.EARThreshold = 1.2 }},
			{"smile_weight", func(c *config.Config) { c.SmileHappyWeight = -0.1 }},
			{"poll_interval", func(c *config.Config) { c.PollIntervalMS = 0 }},
			{"ranking_backend", func(c *config.Config) { c.RankingBackend = "etcd" }},
			{"leaderboard", func(c *config.Config) { c.MaxLeaderboardLimit = 0 }},
		}

		for _, tc := range cases {
			cfg := config.New()
			tc.mutate(cfg)
			err := cfg.Validate()

			convey.Convey("Then "+tc.name+" is rejected", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}
