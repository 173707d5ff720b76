package store

import (
	"context"
	"fmt"

	"github.com/cloodei/apt-attendance/internal/attendance"
)

// AttendanceSink persists flushed session intervals as attendance records.
// Transition pings carry no durable state, so they are ignored here; the
// notify package handles them.
type AttendanceSink struct {
	records RecordWriter
}

func NewAttendanceSink(records RecordWriter) *AttendanceSink {
	return &AttendanceSink{records: records}
}

func (s *AttendanceSink) PingTransition(context.Context, attendance.Transition) {}

func (s *AttendanceSink) FlushIntervals(ctx context.Context, sessionID string, intervals []attendance.Interval) error {
	records := make([]AttendanceRecord, 0, len(intervals))
	for _, iv := range intervals {
		records = append(records, AttendanceRecord{
			SessionID:     sessionID,
			StudentID:     iv.StudentID,
			StudentName:   iv.StudentName,
			InTime:        iv.InTime,
			OutTime:       iv.OutTime,
			AvgConfidence: iv.AvgConfidence,
		})
	}
	if err := s.records.SaveRecords(ctx, sessionID, records); err != nil {
		return fmt.Errorf("persist attendance intervals: %w", err)
	}
	return nil
}
