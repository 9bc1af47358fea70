package tellergo

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"time"
)

const accountNumberPrefix = "ACC"

var accountNumberRe = regexp.MustCompile(`^ACC[0-9]{9}$`)

// ValidAccountNumber reports whether s has the `ACC` + 9 digits shape.
func ValidAccountNumber(s string) bool {
	return accountNumberRe.MatchString(s)
}

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

var SystemClock Clock = ClockFunc(time.Now)

// NumberGenerator proposes account numbers. Uniqueness is checked by the
// directory, not the generator.
type NumberGenerator interface {
	Next() string
}

type randomNumbers struct{}

func NewRandomNumbers() NumberGenerator {
	return randomNumbers{}
}

func (randomNumbers) Next() string {
	return fmt.Sprintf("%s%09d", accountNumberPrefix, rand.IntN(1_000_000_000))
}
