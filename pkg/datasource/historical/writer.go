package historical

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/peter-kozarec/xtrade/pkg/common"
)

func FromCandle(c common.Candle) BinaryCandle {
	return BinaryCandle{
		TimeStamp: c.Date.UnixNano(),
		Open:      c.Open.Float(),
		High:      c.High.Float(),
		Low:       c.Low.Float(),
		Close:     c.Close.Float(),
		Volume:    c.Volume.Float(),
	}
}

// WriteCandles appends candles in the layout CandleReader maps. Callers keep
// the file sorted by writing candles in ascending date order.
func WriteCandles(w io.Writer, candles []common.Candle) error {
	bw := bufio.NewWriter(w)
	for i, c := range candles {
		if err := binary.Write(bw, binary.NativeEndian, FromCandle(c)); err != nil {
			return fmt.Errorf("error writing candle %d: %w", i, err)
		}
	}
	return bw.Flush()
}
