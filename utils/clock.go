package utils

import (
	"time"

	"github.com/saiset-co/sai-directory/types"
)

type realClock struct{}

func RealClock() types.Clock {
	return realClock{}
}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) types.Timer {
	return time.AfterFunc(d, f)
}
