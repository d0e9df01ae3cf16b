// Command stepctl submits daily steps and reads leaderboards from a terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"stepleague/internal/client"
	"stepleague/internal/client/orchestrator"
	"stepleague/internal/domain/model"
	"stepleague/internal/platform/logger"
)

const usage = `usage: stepctl <command> [flags]

commands:
  login        sign in and remember the session
  logout       forget the stored session
  submit       submit steps for a day, optionally with a screenshot
  leaderboard  print a league leaderboard
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	logger.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in := bufio.NewReader(os.Stdin)
	p := message.NewPrinter(language.English)

	var err error
	switch os.Args[1] {
	case "login":
		err = runLogin(ctx, os.Args[2:], in)
	case "logout":
		err = runLogout()
	case "submit":
		err = runSubmit(ctx, os.Args[2:], in, p)
	case "leaderboard":
		err = runLeaderboard(ctx, os.Args[2:], p)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("%v", err)
	}
}

func runLogin(ctx context.Context, args []string, in *bufio.Reader) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	server := fs.String("server", envOr("STEPCTL_SERVER", "http://localhost:8080"), "API base URL")
	login := fs.String("login", "", "username or email")
	fs.Parse(args)

	if *login == "" {
		*login = ask(in, "Username or email: ")
	}
	password := os.Getenv("STEPCTL_PASSWORD")
	if password == "" {
		password = ask(in, "Password: ")
	}

	sess, err := client.Login(ctx, *server, *login, password, nil)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := saveSession(sessionFile(), storedSession{BaseURL: sess.BaseURL(), Token: sess.Token()}); err != nil {
		return err
	}
	fmt.Printf("Signed in as %s.\n", sess.User().Username)
	return nil
}

func runLogout() error {
	sess, err := loadSession(sessionFile())
	if err == nil {
		sess.SignOut()
	}
	if err := os.Remove(sessionFile()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session: %w", err)
	}
	fmt.Println("Signed out.")
	return nil
}

func runSubmit(ctx context.Context, args []string, in *bufio.Reader, p *message.Printer) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	league := fs.String("league", "", "league slug or ID")
	date := fs.String("date", "", "day the steps were walked (YYYY-MM-DD, default today)")
	steps := fs.Int("steps", -1, "step count")
	proofFile := fs.String("proof", "", "screenshot of the step counter")
	overwrite := fs.Bool("overwrite", false, "replace an existing entry for the day")
	fs.Parse(args)

	if *league == "" || *steps < 0 {
		fs.Usage()
		return errors.New("-league and -steps are required")
	}
	sess, err := loadSession(sessionFile())
	if err != nil {
		return err
	}
	lg, err := sess.League(ctx, *league)
	if err != nil {
		return fmt.Errorf("league %s: %w", *league, err)
	}

	forDate := model.DateOf(time.Now())
	if *date != "" {
		if forDate, err = model.ParseDate(*date); err != nil {
			return err
		}
	}
	input := orchestrator.Input{
		LeagueID:     lg.ID,
		ForDate:      forDate,
		Steps:        *steps,
		RequireProof: lg.RequireProof,
		Overwrite:    *overwrite,
	}
	if *proofFile != "" {
		data, err := os.ReadFile(*proofFile)
		if err != nil {
			return fmt.Errorf("read proof: %w", err)
		}
		input.Proof = &orchestrator.Proof{Data: data, ContentType: contentTypeFor(*proofFile)}
	}

	var orch *orchestrator.Orchestrator
	orch = orchestrator.New(sess, orchestrator.WithEvents(func(ev orchestrator.Event) {
		reportEvent(os.Stdout, ev)
		if !ev.Confirm {
			return
		}
		if confirm(in, "Wait? [Y/n] ", true) {
			orch.ConfirmWait()
		} else {
			orch.CancelWait()
		}
	}))

	res, err := orch.Submit(ctx, input)
	var conflict *orchestrator.ConflictError
	if errors.As(err, &conflict) && orch.CanOverwrite() {
		if !confirm(in, "Overwrite the existing entry? [y/N] ", false) {
			return nil
		}
		input.Overwrite = true
		res, err = orch.Submit(ctx, input)
	}
	if err != nil {
		return err
	}
	p.Printf("%s: %d steps on %s\n", res.State, res.Submission.Steps, forDate)
	return nil
}

func runLeaderboard(ctx context.Context, args []string, p *message.Printer) error {
	fs := flag.NewFlagSet("leaderboard", flag.ExitOnError)
	league := fs.String("league", "", "league slug or ID")
	from := fs.String("from", "", "window start (YYYY-MM-DD)")
	to := fs.String("to", "", "window end (YYYY-MM-DD)")
	compareFrom := fs.String("compare-from", "", "baseline window start")
	compareTo := fs.String("compare-to", "", "baseline window end")
	sortBy := fs.String("sort", "", "total_steps or improvement")
	fs.Parse(args)

	if *league == "" {
		fs.Usage()
		return errors.New("-league is required")
	}
	sess, err := loadSession(sessionFile())
	if err != nil {
		return err
	}
	lg, err := sess.League(ctx, *league)
	if err != nil {
		return fmt.Errorf("league %s: %w", *league, err)
	}

	q := client.LeaderboardQuery{SortBy: *sortBy}
	for _, f := range []struct {
		raw string
		dst *model.Date
	}{{*from, &q.From}, {*to, &q.To}, {*compareFrom, &q.CompareFrom}, {*compareTo, &q.CompareTo}} {
		if f.raw == "" {
			continue
		}
		if *f.dst, err = model.ParseDate(f.raw); err != nil {
			return err
		}
	}

	lb, err := sess.Leaderboard(ctx, lg.ID, q)
	if err != nil {
		return err
	}
	p.Printf("%s  %s to %s\n", lg.Name, lb.From, lb.To)
	printLeaderboard(os.Stdout, p, lb.Entries)
	return nil
}

func printLeaderboard(w io.Writer, p *message.Printer, entries []model.LeaderboardEntry) {
	for _, e := range entries {
		name := e.Username
		if name == "" {
			name = e.UserID
		}
		line := p.Sprintf("%3d. %-20s %12d steps  %8d/day", e.Rank, name, e.TotalSteps, e.AveragePerDay)
		if e.ImprovementPct != nil {
			line += p.Sprintf("  %+.1f%%", *e.ImprovementPct)
		}
		if len(e.Badges) > 0 {
			badges := make([]string, len(e.Badges))
			for i, b := range e.Badges {
				badges[i] = string(b)
			}
			line += "  [" + strings.Join(badges, ", ") + "]"
		}
		fmt.Fprintln(w, line)
	}
}

func reportEvent(w io.Writer, ev orchestrator.Event) {
	switch {
	case ev.Message != "":
		fmt.Fprintf(w, "%s: %s\n", ev.State, ev.Message)
	case ev.State == orchestrator.StateVerificationPending:
		fmt.Fprintf(w, "%s: checking your screenshot in %s\n", ev.State, ev.Wait)
	default:
		fmt.Fprintf(w, "%s\n", ev.State)
	}
}

func ask(in *bufio.Reader, prompt string) string {
	fmt.Print(prompt)
	line, _ := in.ReadString('\n')
	return strings.TrimSpace(line)
}

func confirm(in *bufio.Reader, prompt string, def bool) bool {
	switch strings.ToLower(ask(in, prompt)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	}
	return def
}

func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	}
	return ""
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
