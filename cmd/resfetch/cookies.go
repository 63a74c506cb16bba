package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/elsanchez/resfetch/internal/config"
	"github.com/elsanchez/resfetch/internal/cookies"
	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/extractor"
	"github.com/elsanchez/resfetch/internal/fetcher"
	"github.com/elsanchez/resfetch/internal/repository/sqlite"
)

// cookieEnv agrupa lo que necesitan los subcomandos de cookies
type cookieEnv struct {
	cfg       *config.Config
	db        *sqlite.Database
	validator *cookies.CookieValidator
	importer  *cookies.CookieImporter
}

func openCookieEnv(common commonFlags) (*cookieEnv, error) {
	cfg, err := config.Load(common.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	db, err := sqlite.NewDatabase(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	validator := cookies.NewCookieValidator(fetcher.NewFactory(cfg.FetcherOptions()), cfg.CheckURLs)
	return &cookieEnv{
		cfg:       cfg,
		db:        db,
		validator: validator,
		importer:  cookies.NewCookieImporter(db.AccountRepo, validator, cfg.CookiesDir),
	}, nil
}

func (e *cookieEnv) Close() {
	e.db.Close()
}

func handleCookies(args []string) int {
	if len(args) == 0 {
		printCookiesUsage()
		return exitConfig
	}

	switch args[0] {
	case "import":
		return handleCookiesImport(args[1:])
	case "browser":
		return handleCookiesBrowser(args[1:])
	case "validate":
		return handleCookiesValidate(args[1:])
	case "list":
		return handleCookiesList(args[1:])
	case "use":
		return handleCookiesUse(args[1:])
	case "remove":
		return handleCookiesRemove(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown cookies command: %s\n", args[0])
		printCookiesUsage()
		return exitConfig
	}
}

func printCookiesUsage() {
	fmt.Println(`Usage: resfetch cookies <command>

Commands:
  import <file> [--domain d] [--name n] [--activate] [--validate] [--force]
  browser <domain> [--browser name] [--name n] [--activate] [--force]
  validate [domain] [--http]
  list [domain]
  use <domain> <name>
  remove <domain> <name>`)
}

func handleCookiesImport(args []string) int {
	fs := flag.NewFlagSet("cookies import", flag.ContinueOnError)
	var common commonFlags
	var opts cookies.ImportOptions
	common.register(fs)
	fs.StringVar(&opts.Domain, "domain", "", "domain (default: detected from the file)")
	fs.StringVar(&opts.Name, "name", "", "account name")
	fs.BoolVar(&opts.Activate, "activate", false, "make it the active account")
	fs.BoolVar(&opts.Validate, "validate", true, "check cookie expiration")
	fs.BoolVar(&opts.Force, "force", false, "overwrite an account with the same name")
	rest, err := parseFlags(fs, args)
	if err != nil {
		return exitConfig
	}
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: resfetch cookies import <file> [flags]")
		return exitConfig
	}
	opts.FilePath = rest[0]

	env, err := openCookieEnv(common)
	if err != nil {
		return fail(err)
	}
	defer env.Close()

	account, err := env.importer.Import(context.Background(), opts)
	if err != nil {
		return fail(err)
	}
	printImported(account)
	return exitOK
}

func handleCookiesBrowser(args []string) int {
	fs := flag.NewFlagSet("cookies browser", flag.ContinueOnError)
	var common commonFlags
	var opts cookies.ImportOptions
	var browser string
	common.register(fs)
	fs.StringVar(&browser, "browser", "", "browser to read (default: any)")
	fs.StringVar(&opts.Name, "name", "", "account name (default: browser name)")
	fs.BoolVar(&opts.Activate, "activate", false, "make it the active account")
	fs.BoolVar(&opts.Force, "force", false, "overwrite an account with the same name")
	rest, err := parseFlags(fs, args)
	if err != nil {
		return exitConfig
	}
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: resfetch cookies browser <domain> [flags]")
		return exitConfig
	}
	opts.Domain = rest[0]
	opts.Validate = true

	env, err := openCookieEnv(common)
	if err != nil {
		return fail(err)
	}
	defer env.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	account, err := env.importer.ImportBrowser(ctx, cookies.NewBrowserExtractor(), browser, opts)
	if err != nil {
		return fail(err)
	}
	printImported(account)
	return exitOK
}

func printImported(account *domain.Account) {
	fmt.Printf("✓ Imported %s/%s\n", account.Domain, account.Name)
	fmt.Printf("  File:   %s\n", account.CookiePath)
	fmt.Printf("  Status: %s\n", account.ValidationStatus)
	if account.ValidationError != nil {
		fmt.Printf("  Note:   %s\n", *account.ValidationError)
	}
	if account.IsActive {
		fmt.Println("  Active: yes")
	}
}

func handleCookiesValidate(args []string) int {
	fs := flag.NewFlagSet("cookies validate", flag.ContinueOnError)
	var common commonFlags
	var useHTTP bool
	common.register(fs)
	fs.BoolVar(&useHTTP, "http", false, "request the domain's check URL with the cookies")
	rest, err := parseFlags(fs, args)
	if err != nil {
		return exitConfig
	}

	env, err := openCookieEnv(common)
	if err != nil {
		return fail(err)
	}
	defer env.Close()

	ctx, cancel := signalContext()
	defer cancel()

	accounts, err := selectAccounts(ctx, env, rest)
	if err != nil {
		return fail(err)
	}
	if len(accounts) == 0 {
		fmt.Println("No accounts")
		return exitOK
	}

	code := exitOK
	for _, acc := range accounts {
		var result *cookies.ValidationResult
		if useHTTP {
			result, err = env.validator.ValidateAccountHTTP(ctx, acc)
		} else {
			result, err = env.validator.ValidateAccount(acc)
		}
		if err != nil {
			fmt.Printf("✗ %s/%s: %v\n", acc.Domain, acc.Name, err)
			code = exitFailed
			continue
		}

		var errMsg *string
		if !result.IsValid {
			errMsg = &result.Message
			code = exitFailed
		}
		if err := env.db.AccountRepo.UpdateValidation(ctx, acc.ID, result.Status, errMsg); err != nil {
			return fail(err)
		}

		icon := "✓"
		if !result.IsValid {
			icon = "✗"
		}
		fmt.Printf("%s %s/%s: %s", icon, acc.Domain, acc.Name, result.Status)
		if result.Message != "" {
			fmt.Printf(" (%s)", result.Message)
		}
		fmt.Println()
	}
	return code
}

func handleCookiesList(args []string) int {
	fs := flag.NewFlagSet("cookies list", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	rest, err := parseFlags(fs, args)
	if err != nil {
		return exitConfig
	}

	env, err := openCookieEnv(common)
	if err != nil {
		return fail(err)
	}
	defer env.Close()

	accounts, err := selectAccounts(context.Background(), env, rest)
	if err != nil {
		return fail(err)
	}
	if len(accounts) == 0 {
		fmt.Println("No accounts")
		return exitOK
	}

	for _, acc := range accounts {
		active := " "
		if acc.IsActive {
			active = "*"
		}
		lastUsed := "never"
		if acc.LastUsed != nil {
			lastUsed = acc.LastUsed.Format(time.DateTime)
		}
		fmt.Printf("%s %-24s %-16s %-8s %s\n", active, acc.Domain, acc.Name, acc.ValidationStatus, lastUsed)
	}
	return exitOK
}

// selectAccounts devuelve las cuentas del dominio indicado, o de todos
func selectAccounts(ctx context.Context, env *cookieEnv, rest []string) ([]*domain.Account, error) {
	var domains []string
	if len(rest) > 0 {
		domains = []string{extractor.NormalizeDomain(rest[0])}
	} else {
		var err error
		domains, err = env.db.AccountRepo.ListDomains(ctx)
		if err != nil {
			return nil, err
		}
	}

	var accounts []*domain.Account
	for _, d := range domains {
		accs, err := env.db.AccountRepo.GetAll(ctx, d)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, accs...)
	}
	return accounts, nil
}

func handleCookiesUse(args []string) int {
	fs := flag.NewFlagSet("cookies use", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	rest, err := parseFlags(fs, args)
	if err != nil {
		return exitConfig
	}
	if len(rest) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: resfetch cookies use <domain> <name>")
		return exitConfig
	}

	env, err := openCookieEnv(common)
	if err != nil {
		return fail(err)
	}
	defer env.Close()

	dom := extractor.NormalizeDomain(rest[0])
	if err := env.db.AccountRepo.SetActive(context.Background(), dom, rest[1]); err != nil {
		return fail(err)
	}
	fmt.Printf("✓ %s now uses %s\n", dom, rest[1])
	return exitOK
}

func handleCookiesRemove(args []string) int {
	fs := flag.NewFlagSet("cookies remove", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	rest, err := parseFlags(fs, args)
	if err != nil {
		return exitConfig
	}
	if len(rest) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: resfetch cookies remove <domain> <name>")
		return exitConfig
	}

	env, err := openCookieEnv(common)
	if err != nil {
		return fail(err)
	}
	defer env.Close()

	ctx := context.Background()
	dom := extractor.NormalizeDomain(rest[0])
	accounts, err := env.db.AccountRepo.GetAll(ctx, dom)
	if err != nil {
		return fail(err)
	}
	for _, acc := range accounts {
		if !strings.EqualFold(acc.Name, rest[1]) {
			continue
		}
		if err := env.db.AccountRepo.Delete(ctx, acc.ID); err != nil {
			return fail(err)
		}
		// El archivo copiado pertenece a la cuenta
		if err := os.Remove(acc.CookiePath); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
		fmt.Printf("✓ Removed %s/%s\n", dom, acc.Name)
		return exitOK
	}
	return fail(fmt.Errorf("account not found: %s/%s", dom, rest[1]))
}
