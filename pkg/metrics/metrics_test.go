package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("digest"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then collectors are registered under the namespace", func() {
				So(manager, ShouldNotBeNil)
				manager.digestsSent.WithLabelValues("notification", "daily").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_digest_digests_sent_total"], ShouldBeTrue)
			})
		})

		Convey("When registering twice on the same registry", func() {
			registry := prometheus.NewRegistry()
			NewManager(WithPrometheusRegistry(registry))

			Convey("Then promauto panics on the duplicate", func() {
				So(func() { NewManager(WithPrometheusRegistry(registry)) }, ShouldPanic)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording rescoring", func() {
			before := testutil.ToFloat64(globalManager.entitiesRescored.WithLabelValues("post"))
			RecordEntityRescored("post")
			RecordEntityRescored("post")
			RecordRescoreFailure("comment")
			ObserveRescoreRun(0.25, 1700000000)

			Convey("Then counters move", func() {
				So(testutil.ToFloat64(globalManager.entitiesRescored.WithLabelValues("post")), ShouldEqual, before+2)
				So(testutil.ToFloat64(globalManager.rescoreLastUnix), ShouldEqual, 1700000000)
			})
		})

		Convey("When recording digest outcomes", func() {
			sent := testutil.ToFloat64(globalManager.digestsSent.WithLabelValues("notification", "hourly"))
			RecordDigestSent("notification", "hourly")
			RecordDigestFailed("notification", "hourly")
			RecordDigestItems("chat", 3)
			ObserveDigestRun("notification", "hourly", 1.5)
			RecordDataInconsistency("collector")

			Convey("Then the sent counter increments once", func() {
				So(testutil.ToFloat64(globalManager.digestsSent.WithLabelValues("notification", "hourly")), ShouldEqual, sent+1)
			})
		})

		Convey("When recording notifier and queue metrics", func() {
			So(func() {
				ObserveNotifierLatency("ok", 0.05)
				RecordNotifierRejection()
				UpdateBreakerState("postmark", 2)
				RecordNotificationEvent("reply_to_post")
				UpdateQueueSize(10)
				UpdateQueueCapacity(100)
				RecordQueueRejected()
				UpdateWorkerActiveCount(4)
				RecordWorkerJob("sent")
				RecordDuplicateJob()
			}, ShouldNotPanic)

			Convey("Then gauges hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 10)
				So(testutil.ToFloat64(globalManager.breakerState.WithLabelValues("postmark")), ShouldEqual, 2)
			})
		})

		Convey("Then the registry is exposed", func() {
			So(GetRegistry(), ShouldNotBeNil)
		})
	})
}
