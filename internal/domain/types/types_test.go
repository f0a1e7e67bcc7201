package types_test

import (
	"encoding/json"
	"testing"

	types "github.com/okian/facepulse/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEntry(t *testing.T) {
	Convey("Given an Entry", t, func() {
		entry := types.Entry{Rank: 2, PlayerID: "ana", Score: 87.5}

		Convey("When encoding it as JSON", func() {
			raw, err := json.Marshal(entry)

			Convey("Then the wire names are snake_case", func() {
				So(err, ShouldBeNil)
				So(string(raw), ShouldEqual, `{"rank":2,"player_id":"ana","score":87.5}`)
			})
		})
	})
}
