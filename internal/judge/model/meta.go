package model

import (
	"strconv"
	"strings"

	"treadmill/pkg/errors"
)

// IsolateExecMeta is the report isolate writes after a run, one
// key:value pair per line. Unknown keys are ignored so newer isolate
// builds stay readable. Absent keys stay nil.
type IsolateExecMeta struct {
	Time         *float64 // CPU time, seconds
	TimeWall     *float64 // wall clock time, seconds
	MaxRSS       *int64   // kB
	CgMem        *int64   // kB, control group peak
	CswVoluntary *int64
	CswForced    *int64
	ExitCode     *int
	ExitSig      *int
	Killed       bool
	Message      string
}

// ParseExecMeta decodes a meta file's content
func ParseExecMeta(content string) (*IsolateExecMeta, error) {
	meta := &IsolateExecMeta{}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}

		var err error
		switch key {
		case "time":
			meta.Time, err = parseMetaFloat(key, value)
		case "time-wall":
			meta.TimeWall, err = parseMetaFloat(key, value)
		case "max-rss":
			meta.MaxRSS, err = parseMetaInt(key, value)
		case "cg-mem":
			meta.CgMem, err = parseMetaInt(key, value)
		case "csw-voluntary":
			meta.CswVoluntary, err = parseMetaInt(key, value)
		case "csw-forced":
			meta.CswForced, err = parseMetaInt(key, value)
		case "exitcode":
			var code *int64
			if code, err = parseMetaInt(key, value); err == nil {
				v := int(*code)
				meta.ExitCode = &v
			}
		case "exitsig":
			var sig *int64
			if sig, err = parseMetaInt(key, value); err == nil {
				v := int(*sig)
				meta.ExitSig = &v
			}
		case "killed":
			meta.Killed = true
		case "message":
			meta.Message = value
		}
		if err != nil {
			return nil, err
		}
	}
	return meta, nil
}

func parseMetaFloat(key, value string) (*float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return nil, errors.Wrapf(err, errors.InvalidParams, "bad meta value %s:%s", key, value)
	}
	return &v, nil
}

func parseMetaInt(key, value string) (*int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, errors.InvalidParams, "bad meta value %s:%s", key, value)
	}
	return &v, nil
}

// Serialize renders the meta back to isolate's wire form
func (m *IsolateExecMeta) Serialize() string {
	var b strings.Builder
	writeFloat := func(key string, v *float64) {
		if v != nil {
			b.WriteString(key + ":" + strconv.FormatFloat(*v, 'f', -1, 64) + "\n")
		}
	}
	writeInt := func(key string, v *int64) {
		if v != nil {
			b.WriteString(key + ":" + strconv.FormatInt(*v, 10) + "\n")
		}
	}

	writeFloat("time", m.Time)
	writeFloat("time-wall", m.TimeWall)
	writeInt("max-rss", m.MaxRSS)
	writeInt("cg-mem", m.CgMem)
	writeInt("csw-voluntary", m.CswVoluntary)
	writeInt("csw-forced", m.CswForced)
	if m.ExitCode != nil {
		b.WriteString("exitcode:" + strconv.Itoa(*m.ExitCode) + "\n")
	}
	if m.ExitSig != nil {
		b.WriteString("exitsig:" + strconv.Itoa(*m.ExitSig) + "\n")
	}
	if m.Killed {
		b.WriteString("killed:1\n")
	}
	if m.Message != "" {
		b.WriteString("message:" + m.Message + "\n")
	}
	return b.String()
}

// CgMemBytes returns the peak memory in bytes, preferring the cgroup
// counter and falling back to max-rss on isolate builds without
// cgroup accounting
func (m *IsolateExecMeta) CgMemBytes() int64 {
	if m.CgMem != nil {
		return *m.CgMem * 1024
	}
	if m.MaxRSS != nil {
		return *m.MaxRSS * 1024
	}
	return 0
}

// CPUTime returns the measured CPU time, zero when absent
func (m *IsolateExecMeta) CPUTime() float64 {
	if m.Time != nil {
		return *m.Time
	}
	return 0
}

// WallTime returns the measured wall clock time, zero when absent
func (m *IsolateExecMeta) WallTime() float64 {
	if m.TimeWall != nil {
		return *m.TimeWall
	}
	return 0
}
