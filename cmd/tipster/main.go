package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/tipster-app/tipster/internal/account"
	"github.com/tipster-app/tipster/internal/backend"
	"github.com/tipster-app/tipster/internal/config"
	"github.com/tipster-app/tipster/internal/feed"
	"github.com/tipster-app/tipster/internal/logging"
	"github.com/tipster-app/tipster/internal/provider"
	"github.com/tipster-app/tipster/internal/session"
	"github.com/tipster-app/tipster/internal/tips"
	"github.com/tipster-app/tipster/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	client, cleanup, err := buildBackend(cfg, logger)
	if err != nil {
		logger.Error("build backend client", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	sess, err := session.New(client, logger)
	if err != nil {
		logger.Error("start session", "error", err)
		os.Exit(1)
	}
	defer sess.Close()

	ctx := context.Background()
	if err := sess.CurrentUser(ctx); err != nil {
		logger.Warn("restore session", "error", err)
	}

	app := &cli{
		sess:     sess,
		account:  account.NewScreen(sess),
		feed:     feed.NewScreen(client),
		publish:  tips.NewCreateScreen(client, sess),
		apply:    provider.NewApplyScreen(client, sess),
		detail:   provider.NewDetailScreen(client),
		deposits: wallet.NewDepositScreen(client, sess),
	}
	app.run(ctx)
}

// buildBackend picks the hosted client when a backend URL is configured,
// and the seeded in-process backend otherwise.
func buildBackend(cfg config.Config, logger *slog.Logger) (backend.Client, func(), error) {
	if cfg.BackendURL == "" {
		logger.Info("no backend configured, using the built-in demo data")
		return backend.NewDemoMemory(), func() {}, nil
	}

	store := backend.NewFileTokenStore(cfg.TokenPath)
	client, err := backend.NewREST(backend.RESTConfig{
		URL:        cfg.BackendURL,
		APIKey:     cfg.BackendAPIKey,
		TokenStore: store,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

type cli struct {
	sess     *session.Context
	account  *account.Screen
	feed     *feed.Screen
	publish  *tips.CreateScreen
	apply    *provider.ApplyScreen
	detail   *provider.DetailScreen
	deposits *wallet.DepositScreen
}

func (a *cli) run(ctx context.Context) {
	fmt.Println("tipster — type 'help' for commands")
	a.printStatus()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := fields[0], fields[1:]
		switch cmd {
		case "help":
			a.printHelp()
		case "status", "whoami":
			a.printStatus()
		case "feed":
			a.printFeed(ctx)
		case "login":
			a.login(ctx, args)
		case "register":
			a.register(ctx, args)
		case "logout":
			if err := a.sess.Logout(ctx); err != nil {
				fmt.Println("logout:", err)
			}
			a.printStatus()
		case "apply":
			a.applyAsProvider(ctx, strings.Join(args, " "))
		case "application":
			a.printApplication(ctx)
		case "publish":
			a.publishTip(ctx, strings.Join(args, " "))
		case "provider":
			a.printProvider(ctx, args)
		case "balance":
			a.printBalance(ctx)
		case "deposit":
			a.deposit(ctx, args)
		case "quit", "exit":
			return
		default:
			fmt.Printf("unknown command %q, try 'help'\n", cmd)
		}
	}
}

func (a *cli) printHelp() {
	fmt.Print(`commands:
  feed                          show the tip feed
  login <email> <password>      sign in
  register <email> <pw> <pw>    create an account
  logout                        sign out
  status                        show the current session
  apply <bio>                   apply to become a provider
  application                   show your application status
  publish <sport|league|event|market|selection|odds|stake|confidence|type>
  provider <id>                 show a provider's profile and tips
  balance                       show your wallet balance
  deposit <amount>              add funds (minimum $10)
  quit
`)
}

func (a *cli) printStatus() {
	snap := a.sess.Snapshot()
	if snap.Identity == nil {
		fmt.Println("not signed in")
		return
	}
	name := snap.Identity.Email
	if snap.Profile != nil {
		name = snap.Profile.DisplayName
	}
	fmt.Printf("signed in as %s (%s)\n", name, snap.Identity.Email)
	if snap.Capabilities != nil && snap.Capabilities.CanPublish {
		fmt.Println("provider account: publishing enabled")
	}
}

func (a *cli) printFeed(ctx context.Context) {
	view := a.feed.Load(ctx)
	switch view.State {
	case feed.Failed:
		fmt.Println("could not load the feed:", view.Err)
	case feed.Empty:
		fmt.Println("no tips published yet")
	default:
		for _, tip := range view.Tips {
			fmt.Printf("[%s %s] %s — %s @ %.2f (%s, %s) by %s\n",
				tip.Sport, tip.League, tip.Event, tip.Status, tip.Odds,
				tip.Type, resultOrPending(tip.Result), tip.Provider.DisplayName)
		}
	}
}

func resultOrPending(result string) string {
	if result == "" {
		return "unsettled"
	}
	return result
}

func (a *cli) login(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: login <email> <password>")
		return
	}
	err := a.account.Login(ctx, account.LoginForm{Email: args[0], Password: args[1]})
	if err != nil {
		fmt.Println("login failed:", err)
		return
	}
	a.printStatus()
}

func (a *cli) register(ctx context.Context, args []string) {
	if len(args) != 3 {
		fmt.Println("usage: register <email> <password> <confirm-password>")
		return
	}
	err := a.account.Register(ctx, account.RegisterForm{
		Email:           args[0],
		Password:        args[1],
		ConfirmPassword: args[2],
	})
	if err != nil {
		fmt.Println("registration failed:", err)
		return
	}
	a.printStatus()
}

func (a *cli) applyAsProvider(ctx context.Context, bio string) {
	if err := a.apply.Apply(ctx, bio); err != nil {
		fmt.Println("application failed:", err)
		return
	}
	fmt.Println("application submitted, pending review")
}

func (a *cli) printApplication(ctx context.Context) {
	app, err := a.apply.Status(ctx)
	if err != nil {
		fmt.Println("application lookup failed:", err)
		return
	}
	if app == nil {
		fmt.Println("you have not applied yet")
		return
	}
	fmt.Println("application status:", app.Status)
}

func (a *cli) publishTip(ctx context.Context, spec string) {
	parts := strings.Split(spec, "|")
	if len(parts) != 9 {
		fmt.Println("usage: publish <sport|league|event|market|selection|odds|stake|confidence|type>")
		return
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	confidence, err := strconv.Atoi(parts[7])
	if err != nil {
		fmt.Println("confidence must be a number between 1 and 10")
		return
	}
	err = a.publish.Submit(ctx, tips.CreateForm{
		Sport:      parts[0],
		League:     parts[1],
		Event:      parts[2],
		Market:     parts[3],
		Selection:  parts[4],
		Odds:       parts[5],
		Stake:      parts[6],
		Confidence: confidence,
		Type:       strings.ToUpper(parts[8]),
	})
	if err != nil {
		fmt.Println("publish failed:", err)
		return
	}
	fmt.Println("tip published, pending settlement")
}

func (a *cli) printProvider(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: provider <id>")
		return
	}
	view, err := a.detail.Load(ctx, args[0])
	if err != nil {
		fmt.Println("provider lookup failed:", err)
		return
	}
	if view.Profile == nil {
		fmt.Println("provider: Unknown")
	} else {
		fmt.Printf("provider: %s (%s)\n", view.Profile.DisplayName, view.Profile.Specialization)
	}
	for _, tip := range view.Tips {
		fmt.Printf("  [%s] %s — %s @ %.2f\n", tip.Sport, tip.Event, tip.Status, tip.Odds)
	}
}

func (a *cli) printBalance(ctx context.Context) {
	if err := a.deposits.Refresh(ctx); err != nil {
		fmt.Println("balance lookup failed:", err)
		return
	}
	fmt.Printf("balance: $%.2f\n", a.deposits.Balance())
}

func (a *cli) deposit(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: deposit <amount>")
		return
	}
	amount, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		fmt.Println("amount must be a number")
		return
	}
	if err := a.deposits.Deposit(ctx, amount); err != nil {
		fmt.Println("deposit failed:", err)
		return
	}
	fmt.Printf("deposited $%.2f, balance now $%.2f\n", amount, a.deposits.Balance())
}
