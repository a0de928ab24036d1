package service

import (
	"io"
	"math/big"

	"secure-withdrawal-gateway/pkg/units"

	"github.com/rs/zerolog"
)

func weiOf(eth string) *big.Int {
	return units.Ether().MustParse(eth)
}

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// bigEq matches *big.Int arguments by value.
type bigEq struct{ want *big.Int }

func (m bigEq) Matches(x any) bool {
	got, ok := x.(*big.Int)
	return ok && got != nil && got.Cmp(m.want) == 0
}

func (m bigEq) String() string { return "is " + m.want.String() }
