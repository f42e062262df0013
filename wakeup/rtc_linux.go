// rtc_linux.go implements the hardware side of C8 via the kernel RTC ioctl
// interface. Grounded on the original C implementation's hwrtc.c: the wire
// format (struct rtc_wkalrm, seconds/minutes/hours/mday/mon/year broken-down
// UTC fields) and the device path default (/dev/rtc0) match it directly.
// Unlike hwrtc.c's hwrtc_mktime, which forces UTC interpretation by swapping
// the process-wide TZ environment variable around a libc mktime() call,
// this code never touches process-global state: the clock package already
// carries an explicit *time.Location through every conversion, so the
// broken-down fields written to the device are produced with a plain
// t.UTC() call.
//
// Only RTC_WKALM_SET (arming/disarming the wake alarm) is implemented, per
// spec.md §6.4: read-back of the current alarm is not required by the core
// and reading failures are not fatal to it.
package wakeup

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// HardwareRTC talks to a Linux RTC device node (/dev/rtc0 by default) via
// RTC_WKALM_SET.
type HardwareRTC struct {
	Path string
	Logf func(format string, v ...interface{})
}

// NewHardwareRTC builds a HardwareRTC for path. An empty path defaults to
// /dev/rtc0, the device the original daemon used.
func NewHardwareRTC(path string, logf func(format string, v ...interface{})) *HardwareRTC {
	if path == "" {
		path = "/dev/rtc0"
	}
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &HardwareRTC{Path: path, Logf: logf}
}

// WriteWakeAlarm implements RTC. t is interpreted as already UTC by the
// caller (Scheduler.ArmHardware converts before calling); enable=false
// disarms any previously-set alarm.
func (h *HardwareRTC) WriteWakeAlarm(t time.Time, enable bool) error {
	f, err := os.OpenFile(h.Path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	u := t.UTC()
	alrm := &unix.RTCWkAlrm{
		Enabled: boolToUint8(enable),
		Time: unix.RTCTime{
			Sec:  int32(u.Second()),
			Min:  int32(u.Minute()),
			Hour: int32(u.Hour()),
			Mday: int32(u.Day()),
			Mon:  int32(u.Month() - 1), // struct rtc_time months are 0-based
			Year: int32(u.Year() - 1900),
		},
	}
	return unix.IoctlSetRTCWkAlrm(int(f.Fd()), alrm)
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
