package shortage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"atttracker/internal/attendance"
	"atttracker/internal/metrics"
	"atttracker/internal/queue"
	"atttracker/internal/registry"
)

// Summaries computes per-subject attendance for a student.
type Summaries interface {
	StudentSummary(ctx context.Context, studentID, subjectID string, from, to time.Time) ([]attendance.SubjectSummary, error)
}

// SubjectLookup resolves subjects for their minimum attendance.
type SubjectLookup interface {
	GetSubject(ctx context.Context, id string) (registry.Subject, error)
}

// Evaluator re-checks a student/subject pair after every attendance change.
type Evaluator struct {
	summaries Summaries
	subjects  SubjectLookup
	tracker   Tracker
	log       *zap.Logger
	now       func() time.Time
}

func NewEvaluator(summaries Summaries, subjects SubjectLookup, tracker Tracker, log *zap.Logger) *Evaluator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Evaluator{summaries: summaries, subjects: subjects, tracker: tracker, log: log, now: time.Now}
}

// Handle processes one queue message. Unknown message types are ignored.
func (e *Evaluator) Handle(ctx context.Context, msg queue.Message) error {
	switch msg.Type {
	case queue.TypeAttendanceMarked, queue.TypeAttendanceModified:
	default:
		e.log.Debug("ignoring message", zap.String("type", msg.Type))
		return nil
	}
	var change attendance.Change
	if err := msg.Decode(&change); err != nil {
		return fmt.Errorf("decode %s: %w", msg.Type, err)
	}
	return e.Evaluate(ctx, change.StudentID, change.SubjectID)
}

// Evaluate opens or closes the shortage of one student/subject pair.
func (e *Evaluator) Evaluate(ctx context.Context, studentID, subjectID string) error {
	sub, err := e.subjects.GetSubject(ctx, subjectID)
	if err != nil {
		return err
	}
	sums, err := e.summaries.StudentSummary(ctx, studentID, subjectID, time.Time{}, time.Time{})
	if err != nil {
		return err
	}
	if len(sums) == 0 || sums[0].AttendancePercentage >= float64(sub.MinimumAttendance) {
		if err := e.tracker.Remove(ctx, studentID, subjectID); err != nil {
			return err
		}
		return e.refreshGauge(ctx)
	}
	sum := sums[0]
	s := Shortage{
		StudentID:    studentID,
		SubjectID:    subjectID,
		SubjectCode:  sub.Code,
		Percentage:   sum.AttendancePercentage,
		Minimum:      sub.MinimumAttendance,
		TotalClasses: sum.TotalClasses,
		UpdatedAt:    e.now().UTC(),
	}
	if err := e.tracker.Put(ctx, s); err != nil {
		return err
	}
	e.log.Info("attendance shortage",
		zap.String("student", studentID), zap.String("subject", sub.Code),
		zap.Float64("percentage", s.Percentage), zap.Int("minimum", s.Minimum))
	return e.refreshGauge(ctx)
}

func (e *Evaluator) refreshGauge(ctx context.Context) error {
	all, err := e.tracker.List(ctx, "")
	if err != nil {
		return err
	}
	metrics.ShortagesOpen.Set(float64(len(all)))
	return nil
}

// Run consumes q until ctx is done, logging handler failures.
func (e *Evaluator) Run(ctx context.Context, q queue.Queue) error {
	msgs, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for msg := range msgs {
		if err := e.Handle(ctx, msg); err != nil {
			e.log.Error("evaluate shortage", zap.String("type", msg.Type), zap.Error(err))
		}
	}
	return ctx.Err()
}
