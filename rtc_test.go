package kaypro

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBCDRoundTrip(t *testing.T) {
	for i := 0; i < 60; i++ {
		assert.Equal(t, i, fromBCD(bcd(i)))
	}
}

func TestRTCWriteSecondsReadsBack(t *testing.T) {
	r := NewRTC()
	r.Write(rtcRegSeconds, bcd(42))
	assert.Equal(t, byte(0x42), r.Read(rtcRegSeconds))
}

func TestRTCWriteHourPreservesMinutes(t *testing.T) {
	r := NewRTC()
	before := fromBCD(r.Read(rtcRegMinutes))
	r.Write(rtcRegHours, bcd(13))
	assert.Equal(t, byte(0x13), r.Read(rtcRegHours))
	assert.InDelta(t, before, fromBCD(r.Read(rtcRegMinutes)), 1)
}

func TestRTCStatusRegisterIsPlainStorage(t *testing.T) {
	r := NewRTC()
	r.Write(rtcRegStatus, 0x7F)
	assert.Equal(t, byte(0x7F), r.Read(rtcRegStatus))
}
