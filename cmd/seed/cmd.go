package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"
	"time"

	"golang.org/x/term"

	"atttracker/internal/calendar"
	"atttracker/internal/clock"
	"atttracker/internal/registry"
	"atttracker/internal/timetable"
	"atttracker/internal/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	registry   *registry.Service
	users      *user.Service
	timetables *timetable.Service
	calendar   *calendar.Service
	clock      clock.Clock
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  admin -email EMAIL [-name NAME]   - create an admin account; the password is prompted")
	fmt.Fprintln(cli.out, "  demo [-year YYYY-YYYY]            - create a demo branch, subjects, timetable and holiday")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	adminCmd := flag.NewFlagSet("admin", flag.ContinueOnError)
	adminCmd.SetOutput(cli.out)
	adminEmail := adminCmd.String("email", "", "The admin's email.")
	adminName := adminCmd.String("name", "Administrator", "The admin's display name.")

	demoCmd := flag.NewFlagSet("demo", flag.ContinueOnError)
	demoCmd.SetOutput(cli.out)
	demoYear := demoCmd.String("year", "2024-2025", "Academic year of the demo timetable.")

	switch args[1] {
	case "admin":
		if err := adminCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *adminEmail == "" {
			adminCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			adminCmd.Usage()
			return errHelp
		}
		return cli.createAdmin(ctx, *adminName, *adminEmail, string(pwd))
	case "demo":
		if err := demoCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.demo(ctx, *demoYear)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) createAdmin(ctx context.Context, name, email, password string) error {
	u, err := cli.users.Register(ctx, user.Registration{Name: name, Email: email, Password: password, Role: user.RoleAdmin})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "admin %s created (%s)\n", u.Email, u.ID)
	return nil
}

var demoSubjects = []registry.NewSubject{
	{Name: "Data Structures", Code: "CE301", Credits: 4, Type: registry.TypeTheory, Room: "A-101"},
	{Name: "Digital Logic", Code: "CE302", Credits: 3, Type: registry.TypeTheory, Room: "A-102"},
	{Name: "Data Structures Lab", Code: "CE303", Credits: 2, Type: registry.TypePractical, Room: "LAB-1"},
}

// demo seeds branch CE with three semester-3 subjects, a Monday-Friday
// timetable and a one-day holiday a week from today, local time.
func (cli *commandLine) demo(ctx context.Context, academicYear string) error {
	branch, err := cli.registry.CreateBranch(ctx, registry.NewBranch{
		Name: "Computer Engineering", Code: "CE", Department: "Engineering", TotalSemesters: 8,
	})
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(demoSubjects))
	for _, ns := range demoSubjects {
		ns.BranchID = branch.ID
		ns.Semester = 3
		s, err := cli.registry.CreateSubject(ctx, ns)
		if err != nil {
			return err
		}
		ids = append(ids, s.ID)
	}

	schedule := make([]timetable.DaySchedule, 0, 5)
	for i, day := range timetable.Weekdays[:5] {
		schedule = append(schedule, timetable.DaySchedule{Day: day, TimeSlots: []timetable.TimeSlot{
			{StartTime: "09:00", EndTime: "10:00", SubjectID: ids[i%2], Room: demoSubjects[i%2].Room},
			{StartTime: "10:15", EndTime: "11:15", SubjectID: ids[(i+1)%2], Room: demoSubjects[(i+1)%2].Room},
			{StartTime: "14:00", EndTime: "16:00", SubjectID: ids[2], Room: demoSubjects[2].Room, Type: timetable.SlotLab},
		}})
	}
	tt, err := cli.timetables.Create(ctx, timetable.NewTimetable{
		BranchID: branch.ID, Semester: 3, AcademicYear: academicYear, Schedule: schedule,
	})
	if err != nil {
		return err
	}

	day := clock.StartOfDay(cli.clock.Now(), cli.clock.Location()).AddDate(0, 0, 7)
	holiday, err := cli.calendar.Create(ctx, calendar.NewEvent{
		Title:        "Foundation Day",
		StartDate:    day,
		EndDate:      day.AddDate(0, 0, 1).Add(-time.Nanosecond),
		Type:         calendar.TypeHoliday,
		AcademicYear: academicYear,
		Branches:     []string{branch.ID},
		Priority:     5,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cli.out, "branch %s (%s)\n", branch.Code, branch.ID)
	for i, id := range ids {
		fmt.Fprintf(cli.out, "subject %s (%s)\n", demoSubjects[i].Code, id)
	}
	fmt.Fprintf(cli.out, "timetable v%d (%s)\n", tt.Version, tt.ID)
	fmt.Fprintf(cli.out, "holiday %s on %s\n", holiday.Title, day.Format("2006-01-02"))
	return nil
}
