package cookies

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/elsanchez/resfetch/internal/domain"
	"github.com/elsanchez/resfetch/internal/extractor"
	"github.com/elsanchez/resfetch/internal/repository"
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ImportOptions contains options for importing a cookie file
type ImportOptions struct {
	FilePath string
	Domain   string
	Name     string
	Activate bool
	Validate bool
	Force    bool // Overwrite existing account
}

// CookieImporter orchestrates the cookie import workflow
type CookieImporter struct {
	parser      *CookieParser
	validator   *CookieValidator
	accountRepo repository.AccountRepository
	cookiesDir  string
}

// NewCookieImporter creates a new cookie importer that stores copies of the
// imported files in cookiesDir
func NewCookieImporter(accountRepo repository.AccountRepository, validator *CookieValidator, cookiesDir string) *CookieImporter {
	if validator == nil {
		validator = NewCookieValidator(nil, nil)
	}
	return &CookieImporter{
		parser:      NewCookieParser(),
		validator:   validator,
		accountRepo: accountRepo,
		cookiesDir:  cookiesDir,
	}
}

// Import imports a cookie file to the database
func (i *CookieImporter) Import(ctx context.Context, opts ImportOptions) (*domain.Account, error) {
	// 1. Validate file path exists
	if _, err := os.Stat(opts.FilePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("cookie file not found: %s", opts.FilePath)
	}

	// 2. Parse cookies to detect the domain if not provided
	cookies, err := i.parser.ParseFile(opts.FilePath)
	if err != nil {
		return nil, fmt.Errorf("parse cookie file: %w", err)
	}

	// 3. Auto-detect domain if not provided
	dom := extractor.NormalizeDomain(opts.Domain)
	if dom == "" {
		dom = i.parser.DetectDomain(cookies)
		if dom == "" {
			return nil, fmt.Errorf("could not auto-detect domain, please specify --domain")
		}
	}

	// 4. Generate account name if not provided
	name := opts.Name
	if name == "" {
		name, err = i.generateUniqueName(ctx, dom, "account")
		if err != nil {
			return nil, fmt.Errorf("generate account name: %w", err)
		}
	}

	// 5. Check for existing account
	existing, err := i.accountRepo.GetAll(ctx, dom)
	if err != nil {
		return nil, fmt.Errorf("check existing accounts: %w", err)
	}

	for _, acc := range existing {
		if acc.Name == name {
			if !opts.Force {
				return nil, fmt.Errorf("account already exists: %s/%s (use --force to overwrite)", dom, name)
			}
			if err := i.accountRepo.Delete(ctx, acc.ID); err != nil {
				return nil, fmt.Errorf("delete existing account: %w", err)
			}
			break
		}
	}

	// 6. Copy cookie file to the cookies directory
	if err := os.MkdirAll(i.cookiesDir, 0700); err != nil {
		return nil, fmt.Errorf("create cookie directory: %w", err)
	}

	cookieFileName := fmt.Sprintf("%s_%s.txt", unsafeName.ReplaceAllString(dom, "_"), unsafeName.ReplaceAllString(name, "_"))
	cookiePath := filepath.Join(i.cookiesDir, cookieFileName)

	absFilePath, _ := filepath.Abs(opts.FilePath)
	absCookiePath, _ := filepath.Abs(cookiePath)

	if absFilePath != absCookiePath {
		sourceData, err := os.ReadFile(opts.FilePath)
		if err != nil {
			return nil, fmt.Errorf("read source cookie file: %w", err)
		}

		if err := os.WriteFile(cookiePath, sourceData, 0600); err != nil {
			return nil, fmt.Errorf("write cookie file: %w", err)
		}
	}

	// 7. Validate cookies if requested
	validationStatus := domain.ValidationStatusUnknown
	var validationError *string

	if opts.Validate {
		result, err := i.validator.ValidateFile(cookiePath)
		if err != nil {
			errMsg := err.Error()
			validationError = &errMsg
			validationStatus = domain.ValidationStatusInvalid
		} else {
			validationStatus = result.Status
			if !result.IsValid {
				validationError = &result.Message
			}
		}
	}

	// 8. Create account in database
	account := &domain.Account{
		Domain:           dom,
		Name:             name,
		CookiePath:       cookiePath,
		ValidationStatus: validationStatus,
		ValidationError:  validationError,
	}

	id, err := i.accountRepo.Create(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	account.ID = id

	if opts.Validate {
		if err := i.accountRepo.UpdateValidation(ctx, id, validationStatus, validationError); err != nil {
			return nil, fmt.Errorf("update validation: %w", err)
		}
	}

	// 9. Set as active if requested or if it is the domain's only account
	if opts.Activate || len(existing) == 0 {
		if err := i.accountRepo.SetActive(ctx, dom, name); err != nil {
			return nil, fmt.Errorf("set active: %w", err)
		}
		account.IsActive = true
	}

	return account, nil
}

// ImportBrowser extracts a domain's cookies from a browser into the cookies
// directory and imports them as an account
func (i *CookieImporter) ImportBrowser(ctx context.Context, browsers *BrowserExtractor, browser string, opts ImportOptions) (*domain.Account, error) {
	if opts.Domain == "" {
		return nil, fmt.Errorf("domain is required for browser import")
	}
	if err := os.MkdirAll(i.cookiesDir, 0700); err != nil {
		return nil, fmt.Errorf("create cookie directory: %w", err)
	}

	tmp, err := os.CreateTemp(i.cookiesDir, ".browser-*.txt")
	if err != nil {
		return nil, fmt.Errorf("create temp cookie file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if _, err := browsers.Extract(ctx, ExtractOptions{
		Browser:    browser,
		Domain:     opts.Domain,
		OutputPath: tmpPath,
	}); err != nil {
		return nil, err
	}

	opts.FilePath = tmpPath
	if opts.Name == "" && browser != "" {
		opts.Name = browser
	}
	return i.Import(ctx, opts)
}

// generateUniqueName generates a unique account name
func (i *CookieImporter) generateUniqueName(ctx context.Context, dom string, baseName string) (string, error) {
	existing, err := i.accountRepo.GetAll(ctx, dom)
	if err != nil {
		return "", err
	}

	existingNames := make(map[string]bool)
	for _, acc := range existing {
		existingNames[acc.Name] = true
	}

	if !existingNames[baseName] {
		return baseName, nil
	}

	for i := 2; i < 1000; i++ {
		name := fmt.Sprintf("%s_%d", baseName, i)
		if !existingNames[name] {
			return name, nil
		}
	}

	return "", fmt.Errorf("could not generate unique name after 1000 attempts")
}
