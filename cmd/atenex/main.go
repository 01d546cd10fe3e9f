// Command atenex is a terminal client for the Atenex knowledge base:
// document ingestion management, conversational querying, and platform
// administration against the API gateway.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"atenex-cli/internal/api"
	chatctl "atenex-cli/internal/chat"
	"atenex-cli/internal/config"
	"atenex-cli/internal/errs"
	"atenex-cli/internal/model"
	"atenex-cli/internal/session"
	tuichat "atenex-cli/tui/chat"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

type app struct {
	cfg    config.Config
	store  *session.Store
	client *api.Client
	log    *zap.Logger
}

type loginFunc func(ctx context.Context, email, password string) (string, error)

func (f loginFunc) Login(ctx context.Context, email, password string) (string, error) {
	return f(ctx, email, password)
}

func newApp() (*app, error) {
	_ = godotenv.Load()

	log := buildLogger()
	cfg, err := config.Load(log)
	if err != nil {
		return nil, err
	}

	// the store needs the client for sign-in and the client needs the store
	// for tokens; the function value breaks the construction cycle
	var client *api.Client
	store := session.NewStore(loginFunc(func(ctx context.Context, email, password string) (string, error) {
		return client.Login(ctx, email, password)
	}), cfg.AdminEmail, "", log)
	client = api.New(cfg.GatewayURL, store, log)

	return &app{cfg: cfg, store: store, client: client, log: log}, nil
}

func buildLogger() *zap.Logger {
	if os.Getenv(config.EnvAppEnv) == "development" {
		log, _ := zap.NewDevelopment()
		return log
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	log, _ := cfg.Build()
	return log
}

// requireSession loads the persisted session or exits. The returned tenant
// identifies the caller on tenant-scoped endpoints.
func (a *app) requireSession() (*model.Session, api.TenantAuth) {
	sess, _ := a.store.Load()
	if sess == nil {
		fail(fmt.Errorf("%w: run 'atenex login' first", errs.ErrNoSession))
	}
	return sess, api.TenantAuth{UserID: sess.UserID, CompanyID: sess.CompanyID}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		fmt.Fprintf(os.Stderr, "api error: status=%d msg=%s\n", apiErr.Status, apiErr.Message)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `atenex CLI
Usage:
  atenex <cmd> [args]

Environment:
  %s   API gateway base URL (required in production)
  %s                env name; development default applies otherwise
  %s        admin account email (default admin@atenex.com)

Commands:
  version
  login        -u <email> -p <password>          (saves token)
  logout
  whoami
  upload       -file <path>
  docs         [-all] [-fast] [-page n]
  docs-watch   [-interval dur] [-fast]
  doc-status   -id <uuid>
  doc-retry    -id <uuid>
  doc-rm       -id <uuid>
  doc-rm-bulk  -ids <uuid,uuid,...>
  doc-stats    [-from date] [-to date] [-status s]
  ask          -q <question> [-chat <uuid>]
  chats
  chat         [-id <uuid>]                      (interactive)
  chat-rm      -id <uuid>
  admin-stats
  admin-companies
  admin-company-add -name <name>
  admin-user-add    -email <email> -p <password> -name <name> -company <uuid>
  admin-users       -company <uuid>
`, config.EnvGatewayURL, config.EnvAppEnv, config.EnvAdminEmail)
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	args := flag.Args()[1:]

	if cmd == "version" {
		fmt.Printf("atenex %s (%s)\n", version, buildDate)
		return
	}

	a, err := newApp()
	if err != nil {
		fail(err)
	}
	defer func() { _ = a.log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	switch cmd {

	case "login":
		fs := flag.NewFlagSet("login", flag.ExitOnError)
		u := fs.String("u", "", "email")
		p := fs.String("p", "", "password")
		_ = fs.Parse(args)
		if *u == "" || *p == "" {
			fmt.Fprintln(os.Stderr, "need -u and -p")
			os.Exit(1)
		}
		sess, route, err := a.store.SignIn(ctx, *u, *p)
		if err != nil {
			fail(err)
		}
		fmt.Printf("ok: signed in as %s (%s)\n", sess.Name, route)

	case "logout":
		a.store.SignOut()
		fmt.Println("ok")

	case "whoami":
		sess, _ := a.requireSession()
		printJSON(sess)

	case "ask":
		fs := flag.NewFlagSet("ask", flag.ExitOnError)
		q := fs.String("q", "", "question")
		chatID := fs.String("chat", "", "existing conversation id")
		topK := fs.Int("top-k", 0, "retriever top k (0 = server default)")
		_ = fs.Parse(args)
		if *q == "" {
			fmt.Fprintln(os.Stderr, "need -q")
			os.Exit(1)
		}
		a.requireSession()

		res, err := a.client.Ask(ctx, *q, *chatID, *topK)
		if err != nil {
			fail(err)
		}
		fmt.Println(res.Answer)
		if len(res.Sources) > 0 {
			fmt.Println()
			for i, src := range res.Sources {
				label := src.Tag
				if label == "" {
					label = fmt.Sprintf("Doc %d", i+1)
				}
				fmt.Printf("  [%s] %s (score %.2f)\n", label, src.FileName, src.Score)
			}
		}
		if res.ChatID != "" {
			fmt.Printf("\nchat id: %s\n", res.ChatID)
		}

	case "chats":
		a.requireSession()
		chats, err := a.client.Chats(ctx, 50, 0)
		if err != nil {
			fail(err)
		}
		for _, c := range chats {
			fmt.Printf("%s  %s  %s\n", c.ID, c.UpdatedAt.Format("2006-01-02 15:04"), c.Title)
		}

	case "chat-rm":
		fs := flag.NewFlagSet("chat-rm", flag.ExitOnError)
		id := fs.String("id", "", "conversation id")
		_ = fs.Parse(args)
		if *id == "" {
			fmt.Fprintln(os.Stderr, "need -id")
			os.Exit(1)
		}
		a.requireSession()
		if err := a.client.DeleteChat(ctx, *id); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	case "chat":
		fs := flag.NewFlagSet("chat", flag.ExitOnError)
		id := fs.String("id", "", "conversation id to resume")
		_ = fs.Parse(args)
		sess, _ := a.requireSession()

		ctrl := chatctl.NewController(a.client, sess.Name, nil, a.log)
		prog := tea.NewProgram(tuichat.New(ctrl, *id, a.log), tea.WithAltScreen())
		if _, err := prog.Run(); err != nil {
			fail(err)
		}

	case "upload":
		cmdUpload(ctx, a, args)
	case "docs":
		cmdDocs(ctx, a, args)
	case "docs-watch":
		cmdDocsWatch(a, args)
	case "doc-status":
		cmdDocStatus(ctx, a, args)
	case "doc-retry":
		cmdDocRetry(ctx, a, args)
	case "doc-rm":
		cmdDocRm(ctx, a, args)
	case "doc-rm-bulk":
		cmdDocRmBulk(ctx, a, args)
	case "doc-stats":
		cmdDocStats(ctx, a, args)

	case "admin-stats":
		cmdAdminStats(ctx, a)
	case "admin-companies":
		cmdAdminCompanies(ctx, a)
	case "admin-company-add":
		cmdAdminCompanyAdd(ctx, a, args)
	case "admin-user-add":
		cmdAdminUserAdd(ctx, a, args)
	case "admin-users":
		cmdAdminUsers(ctx, a, args)

	default:
		usage()
	}
}
