package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	convey.Convey("Given an initialized global logger", t, func() {
		err := Init()
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("Then Get returns a usable logger", func() {
			log := Get()
			convey.So(log, convey.ShouldNotBeNil)

			convey.So(func() {
				log.Info(context.Background(), "info message", String("k", "v"))
				log.Debug(context.Background(), "debug message", Int("n", 1))
				log.Warn(context.Background(), "warn message", Bool("flag", true))
				log.Error(context.Background(), "error message", Error(errors.New("boom")))
			}, convey.ShouldNotPanic)
		})

		convey.Convey("Then Named returns a scoped logger", func() {
			named := Get().Named("scope")
			convey.So(named, convey.ShouldNotBeNil)
			convey.So(func() {
				named.Info(context.Background(), "scoped message")
			}, convey.ShouldNotPanic)
		})

		convey.Convey("Then level strings are parsed", func() {
			convey.So(SetLevelString("debug"), convey.ShouldBeNil)
			convey.So(SetLevelString("info"), convey.ShouldBeNil)
			convey.So(SetLevelString("warn"), convey.ShouldBeNil)
			convey.So(SetLevelString("error"), convey.ShouldBeNil)
			convey.So(SetLevelString("loud"), convey.ShouldNotBeNil)
		})
	})
}

func TestFieldConstructors(t *testing.T) {
	convey.Convey("Given the field constructors", t, func() {
		convey.So(String("a", "b"), convey.ShouldResemble, Field{Key: "a", Value: "b"})
		convey.So(Int("n", 2).Value, convey.ShouldEqual, 2)
		convey.So(Float64("f", 1.5).Value, convey.ShouldEqual, 1.5)
		convey.So(Duration("d", time.Second).Value, convey.ShouldEqual, time.Second)
		convey.So(Error(nil).Key, convey.ShouldEqual, "error")
		convey.So(Any("x", []int{1}).Key, convey.ShouldEqual, "x")
	})
}
