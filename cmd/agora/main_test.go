package main

import (
	"context"
	"errors"
	"os"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/agora/internal/config"
	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestRootCommand(t *testing.T) {
	Convey("Given the root command", t, func() {
		root := newRootCommand()

		Convey("Then every trigger is registered", func() {
			names := map[string]bool{}
			for _, c := range root.Commands() {
				names[c.Name()] = true
			}
			So(names["rescore"], ShouldBeTrue)
			So(names["digest"], ShouldBeTrue)
			So(names["invite"], ShouldBeTrue)
			So(names["newsletter"], ShouldBeTrue)
			So(names["serve"], ShouldBeTrue)
		})
	})
}

func TestParseDigestCadence(t *testing.T) {
	Convey("Digest cadences", t, func() {
		for in, want := range map[string]model.Cadence{
			"hourly": model.CadenceHourly,
			"Daily":  model.CadenceDaily,
			"weekly": model.CadenceWeekly,
		} {
			got, err := parseDigestCadence(in)
			So(err, ShouldBeNil)
			So(got, ShouldEqual, want)
		}

		Convey("Immediate and never have no cycle", func() {
			_, err := parseDigestCadence("immediate")
			So(errors.Is(err, model.ErrInvalidFrequency), ShouldBeTrue)
			_, err = parseDigestCadence("never")
			So(err, ShouldNotBeNil)
			_, err = parseDigestCadence("monthly")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestBatchCommands(t *testing.T) {
	Convey("Given a dry-run in-memory configuration", t, func() {
		_ = os.Unsetenv("AGORA_CONFIG")
		ctx := context.Background()

		Convey("When running rescore", func() {
			root := newRootCommand()
			root.SetArgs([]string{"rescore", "--store", "memory", "--dry-run"})
			So(root.ExecuteContext(ctx), ShouldBeNil)
		})

		Convey("When running the daily digest", func() {
			root := newRootCommand()
			root.SetArgs([]string{"digest", "daily", "--store", "memory", "--dry-run"})
			So(root.ExecuteContext(ctx), ShouldBeNil)
		})

		Convey("When running the newsletter", func() {
			root := newRootCommand()
			root.SetArgs([]string{"newsletter", "--store", "memory", "--dry-run"})
			So(root.ExecuteContext(ctx), ShouldBeNil)
		})

		Convey("When running a seeded daily digest", func() {
			root := newRootCommand()
			root.SetArgs([]string{"digest", "daily", "--store", "memory", "--dry-run", "--seed", "2"})
			So(root.ExecuteContext(ctx), ShouldBeNil)
		})

		Convey("When inviting to a seeded community", func() {
			root := newRootCommand()
			root.SetArgs([]string{"invite", "community0", "ada@example.com", "not-an-email", "--store", "memory", "--dry-run", "--seed", "1"})
			So(root.ExecuteContext(ctx), ShouldBeNil)
		})

		Convey("When inviting to an unknown community", func() {
			root := newRootCommand()
			root.SetArgs([]string{"invite", "nowhere", "ada@example.com", "--store", "memory", "--dry-run"})
			So(root.ExecuteContext(ctx), ShouldBeNil)
		})

		Convey("When invite is missing its addresses", func() {
			root := newRootCommand()
			root.SetArgs([]string{"invite", "gophers", "--store", "memory"})
			So(root.ExecuteContext(ctx), ShouldNotBeNil)
		})

		Convey("When the digest cadence is invalid", func() {
			root := newRootCommand()
			root.SetArgs([]string{"digest", "monthly", "--store", "memory"})
			So(root.ExecuteContext(ctx), ShouldNotBeNil)
		})

		Convey("When postgres is selected without a database", func() {
			root := newRootCommand()
			root.SetArgs([]string{"rescore", "--store", "postgres"})
			err := root.ExecuteContext(ctx)
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestBuildNotifier(t *testing.T) {
	Convey("Given a postmark configuration", t, func() {
		cfg := config.New()
		cfg.Notifier = config.NotifierPostmark
		cfg.PostmarkServerToken = "t"

		Convey("Then the notifier reports a closed circuit", func() {
			n := buildNotifier(cfg)
			s, ok := n.(interface{ State() string })
			So(ok, ShouldBeTrue)
			So(s.State(), ShouldEqual, "closed")
		})
	})
}
