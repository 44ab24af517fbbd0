package attendance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"atttracker/internal/apperr"
	"atttracker/internal/clock"
	"atttracker/internal/metrics"
	"atttracker/internal/queue"
	"atttracker/internal/registry"
	"atttracker/internal/validate"
)

// Repository persists attendance records.
type Repository interface {
	// Insert fails with a ConflictError when (student, subject, date, startTime) exists.
	Insert(ctx context.Context, r Record) error
	Get(ctx context.Context, id string) (Record, error)
	// List returns records ordered by date then start time.
	List(ctx context.Context, f Filter) ([]Record, error)
	// Save writes status and history when the stored history still has
	// expectedHistory entries.
	Save(ctx context.Context, r Record, expectedHistory int) error
}

// SubjectLookup resolves subjects.
type SubjectLookup interface {
	GetSubject(ctx context.Context, id string) (registry.Subject, error)
}

// Publisher receives change notifications.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Filter narrows List. From/To are inclusive class dates; zero means open.
type Filter struct {
	StudentID string
	SubjectID string
	Status    string
	From, To  time.Time
	Limit     int
	Offset    int
}

func (f Filter) match(r Record) bool {
	if f.StudentID != "" && r.StudentID != f.StudentID {
		return false
	}
	if f.SubjectID != "" && r.SubjectID != f.SubjectID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && r.Date.Before(f.From) {
		return false
	}
	return f.To.IsZero() || !r.Date.After(f.To)
}

// NewRecord contains information needed to mark attendance.
type NewRecord struct {
	StudentID    string `json:"student" validate:"required"`
	SubjectID    string `json:"subject" validate:"required"`
	Date         string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime    string `json:"startTime" validate:"hhmm"`
	EndTime      string `json:"endTime" validate:"hhmm"`
	Status       string `json:"status" validate:"required,oneof=present absent late"`
	ClassType    string `json:"classType" validate:"omitempty,oneof=lecture lab tutorial seminar"`
	AcademicYear string `json:"academicYear" validate:"omitempty,academicyear"`
	MarkedBy     string `json:"-"`
}

// BulkResult reports the outcome of one item of MarkBulk.
type BulkResult struct {
	Index  int     `json:"index"`
	Record *Record `json:"record,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// MaxBulk caps MarkBulk.
const MaxBulk = 200

// Service implements the attendance ledger.
type Service struct {
	repo       Repository
	subjects   SubjectLookup
	pub        Publisher
	clock      clock.Clock
	log        *zap.Logger
	windowDays int
}

func NewService(repo Repository, subjects SubjectLookup, clk clock.Clock, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, subjects: subjects, clock: clk, log: log, windowDays: DefaultModifyWindowDays}
}

// UsePublisher sends change notifications to p.
func (s *Service) UsePublisher(p Publisher) { s.pub = p }

// SetModifyWindow changes the number of days a status stays editable.
func (s *Service) SetModifyWindow(days int) {
	if days > 0 {
		s.windowDays = days
	}
}

// ParseDate turns "YYYY-MM-DD" into local midnight.
func (s *Service) ParseDate(v string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", v, s.clock.Location())
	if err != nil {
		return time.Time{}, apperr.Field("date", "date must have the format YYYY-MM-DD")
	}
	return d, nil
}

func (s *Service) publish(ctx context.Context, typ string, r Record) {
	if s.pub == nil {
		return
	}
	msg, err := queue.NewMessage(typ, Change{RecordID: r.ID, StudentID: r.StudentID, SubjectID: r.SubjectID, Status: r.Status, Date: r.Date})
	if err == nil {
		err = s.pub.Publish(ctx, msg)
	}
	if err != nil {
		// the record is stored; shortage evaluation catches up on the next change
		s.log.Warn("publish attendance change", zap.String("type", typ), zap.String("record", r.ID), zap.Error(err))
	}
}

// Mark records attendance for one class occurrence.
func (s *Service) Mark(ctx context.Context, in NewRecord) (Record, error) {
	if err := validate.Struct(in); err != nil {
		return Record{}, err
	}
	if in.StartTime >= in.EndTime {
		return Record{}, apperr.Field("endTime", "endTime must be after startTime")
	}
	date, err := s.ParseDate(in.Date)
	if err != nil {
		return Record{}, err
	}
	if _, err := s.subjects.GetSubject(ctx, in.SubjectID); err != nil {
		return Record{}, err
	}
	classType := in.ClassType
	if classType == "" {
		classType = "lecture"
	}
	r := Record{
		ID:                  uuid.NewString(),
		StudentID:           in.StudentID,
		SubjectID:           in.SubjectID,
		Date:                date,
		StartTime:           in.StartTime,
		EndTime:             in.EndTime,
		Status:              in.Status,
		MarkedBy:            in.MarkedBy,
		MarkedAt:            s.clock.Now(),
		ClassType:           classType,
		AcademicYear:        in.AcademicYear,
		ModificationHistory: []Modification{},
	}
	if err := s.repo.Insert(ctx, r); err != nil {
		return Record{}, err
	}
	metrics.AttendanceMarks.WithLabelValues(r.Status).Inc()
	s.publish(ctx, queue.TypeAttendanceMarked, r)
	return r, nil
}

// MarkBulk marks each item independently and reports per-item outcomes.
func (s *Service) MarkBulk(ctx context.Context, items []NewRecord) ([]BulkResult, error) {
	if len(items) == 0 || len(items) > MaxBulk {
		return nil, apperr.Field("records", fmt.Sprintf("between 1 and %d records are required", MaxBulk))
	}
	results := make([]BulkResult, 0, len(items))
	for i, in := range items {
		r, err := s.Mark(ctx, in)
		res := BulkResult{Index: i}
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Record = &r
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]Record, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return s.repo.List(ctx, f)
}

// ModifyStatus changes a record's status within the modification window.
// Outside the window it refuses with apperr.ErrForbidden.
func (s *Service) ModifyStatus(ctx context.Context, id, newStatus, by, reason string) (Record, bool, error) {
	if !validStatus(newStatus) {
		return Record{}, false, apperr.Field("status", "status must be one of [present absent late]")
	}
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return Record{}, false, err
	}
	now := s.clock.Now()
	if !r.CanModify(now, s.windowDays) {
		return Record{}, false, fmt.Errorf("%w: attendance older than %d days cannot be modified", apperr.ErrForbidden, s.windowDays)
	}
	prevLen := len(r.ModificationHistory)
	if !r.ModifyStatus(newStatus, by, reason, now) {
		return r, false, nil
	}
	if err := s.repo.Save(ctx, r, prevLen); err != nil {
		return Record{}, false, err
	}
	metrics.AttendanceModifications.Inc()
	s.log.Info("attendance modified", zap.String("id", r.ID), zap.String("by", by), zap.String("status", newStatus))
	s.publish(ctx, queue.TypeAttendanceModified, r)
	return r, true, nil
}

func validStatus(v string) bool {
	return v == StatusPresent || v == StatusAbsent || v == StatusLate
}

// StudentSummary groups a student's records by subject. subjectID and the
// date bounds are optional.
func (s *Service) StudentSummary(ctx context.Context, studentID, subjectID string, from, to time.Time) ([]SubjectSummary, error) {
	records, err := s.repo.List(ctx, Filter{StudentID: studentID, SubjectID: subjectID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	bySubject := map[string]*SubjectSummary{}
	for _, r := range records {
		sum, ok := bySubject[r.SubjectID]
		if !ok {
			sum = &SubjectSummary{SubjectID: r.SubjectID}
			bySubject[r.SubjectID] = sum
		}
		sum.add(r.Status)
	}
	out := make([]SubjectSummary, 0, len(bySubject))
	for _, sum := range bySubject {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectID < out[j].SubjectID })
	return out, nil
}

// Sort orders for SubjectSummary.
const (
	OrderDesc = "desc"
	OrderAsc  = "asc"
)

// SubjectSummary groups a subject's records by student, sorted by percentage
// descending unless order is OrderAsc (worst first).
func (s *Service) SubjectSummary(ctx context.Context, subjectID string, from, to time.Time, order string) ([]StudentSummary, error) {
	if order != "" && order != OrderAsc && order != OrderDesc {
		return nil, apperr.Field("order", "order must be asc or desc")
	}
	records, err := s.repo.List(ctx, Filter{SubjectID: subjectID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	byStudent := map[string]*StudentSummary{}
	for _, r := range records {
		sum, ok := byStudent[r.StudentID]
		if !ok {
			sum = &StudentSummary{StudentID: r.StudentID}
			byStudent[r.StudentID] = sum
		}
		sum.add(r.Status)
	}
	out := make([]StudentSummary, 0, len(byStudent))
	for _, sum := range byStudent {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.AttendancePercentage != b.AttendancePercentage {
			if order == OrderAsc {
				return a.AttendancePercentage < b.AttendancePercentage
			}
			return a.AttendancePercentage > b.AttendancePercentage
		}
		return a.StudentID < b.StudentID
	})
	return out, nil
}

// DailyCount tallies records of one day; a zero date means today.
func (s *Service) DailyCount(ctx context.Context, date time.Time) (DailyCount, error) {
	if date.IsZero() {
		date = s.clock.Now()
	}
	day := clock.StartOfDay(date, s.clock.Location())
	records, err := s.repo.List(ctx, Filter{From: day, To: day.AddDate(0, 0, 1).Add(-time.Nanosecond)})
	if err != nil {
		return DailyCount{}, err
	}
	out := DailyCount{Date: day.Format("2006-01-02")}
	for _, r := range records {
		switch r.Status {
		case StatusPresent:
			out.Present++
		case StatusAbsent:
			out.Absent++
		case StatusLate:
			out.Late++
		}
	}
	out.Total = out.Present + out.Absent + out.Late
	return out, nil
}

// Trends returns a student's per-day attendance over the trailing window of
// days (default 30), oldest first. Days without classes are omitted.
func (s *Service) Trends(ctx context.Context, studentID string, days int) ([]TrendPoint, error) {
	if days <= 0 {
		days = 30
	}
	if days > 366 {
		return nil, apperr.Field("days", "days must be at most 366")
	}
	today := clock.StartOfDay(s.clock.Now(), s.clock.Location())
	from := today.AddDate(0, 0, -(days - 1))
	records, err := s.repo.List(ctx, Filter{StudentID: studentID, From: from, To: today.AddDate(0, 0, 1).Add(-time.Nanosecond)})
	if err != nil {
		return nil, err
	}
	byDay := map[string]*TrendPoint{}
	for _, r := range records {
		key := r.Date.In(s.clock.Location()).Format("2006-01-02")
		p, ok := byDay[key]
		if !ok {
			p = &TrendPoint{Date: key}
			byDay[key] = p
		}
		p.TotalClasses++
		if r.Status == StatusPresent {
			p.PresentCount++
		}
	}
	out := make([]TrendPoint, 0, len(byDay))
	for _, p := range byDay {
		p.AttendancePercentage = Percentage(p.PresentCount, p.TotalClasses)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}
