package utils

import (
	"time"
)

// Clock는 현재 시간을 반환합니다. 테스트에서는 FixedClock을 주입합니다.
type Clock func() time.Time

// SystemClock은 실제 시간을 반환하는 Clock입니다.
func SystemClock() time.Time {
	return time.Now()
}

// FixedClock은 항상 t를 반환하는 Clock을 생성합니다.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}

// TimestampLayout은 마이크로초까지 표시하는 RFC 3339 형식입니다.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Timestamp는 시간을 UTC 기준 RFC 3339 문자열(마이크로초, Z 접미사)로 변환합니다.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
