package schedule_test

import (
	"testing"
	"time"

	"github.com/okian/agora/internal/domain/model"
	"github.com/okian/agora/internal/domain/schedule"
	. "github.com/smartystreets/goconvey/convey"
)

// 2024-06-01 is a Saturday.
var saturday = time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)

func TestShouldRunToday(t *testing.T) {
	Convey("Given a scheduler with the default weekly day", t, func() {
		s := schedule.New()

		Convey("Then hourly and daily always fire", func() {
			for i := 0; i < 7; i++ {
				day := saturday.AddDate(0, 0, i)
				So(s.ShouldRunToday(model.Hourly(), day), ShouldBeTrue)
				So(s.ShouldRunToday(model.Daily(), day), ShouldBeTrue)
			}
		})

		Convey("Then never and immediate do not fire", func() {
			So(s.ShouldRunToday(model.Never(), saturday), ShouldBeFalse)
			So(s.ShouldRunToday(model.Immediate(), saturday), ShouldBeFalse)
		})

		Convey("When weekly has no day", func() {
			Convey("Then it fires on Saturday only", func() {
				So(s.ShouldRunToday(model.WeeklyUnset(), saturday), ShouldBeTrue)
				So(s.ShouldRunToday(model.WeeklyUnset(), saturday.AddDate(0, 0, 1)), ShouldBeFalse)
			})
		})

		Convey("When weekly names a day other than today", func() {
			Convey("Then it does not fire", func() {
				So(s.ShouldRunToday(model.Weekly(time.Monday), saturday), ShouldBeFalse)
				So(s.ShouldRunToday(model.Weekly(time.Monday), saturday.AddDate(0, 0, 2)), ShouldBeTrue)
			})
		})
	})

	Convey("Given a configured fallback day", t, func() {
		s := schedule.New(schedule.WithWeeklyDay(time.Wednesday))

		So(s.WeeklyDay(model.WeeklyUnset()), ShouldEqual, time.Wednesday)
		So(s.WeeklyDay(model.Weekly(time.Friday)), ShouldEqual, time.Friday)
		So(s.ShouldRunToday(model.WeeklyUnset(), saturday), ShouldBeFalse)
	})
}

func TestLookbackDays(t *testing.T) {
	Convey("Lookback follows the cadence", t, func() {
		So(schedule.LookbackDays(model.Daily()), ShouldEqual, 1)
		So(schedule.LookbackDays(model.Weekly(time.Monday)), ShouldEqual, 7)
		So(schedule.LookbackDays(model.Hourly()), ShouldEqual, 0)
	})
}
