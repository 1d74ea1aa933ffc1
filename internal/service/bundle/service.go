package bundle

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/mybookkeepers/portal/internal/blob"
	"github.com/mybookkeepers/portal/internal/domain"
	"github.com/mybookkeepers/portal/internal/repository"
)

// Archive is an assembled zip ready to stream to the caller.
type Archive struct {
	Name    string
	Content []byte
}

// Service assembles a client's uploaded statements into a single zip.
type Service struct {
	users        repository.UserRepository
	packages     repository.PackageRepository
	statements   repository.StatementRepository
	blobs        blob.Store
	fetchTimeout time.Duration
	logger       *slog.Logger
}

// New constructs a Service. fetchTimeout bounds each individual file
// fetch; zero or negative disables the bound.
func New(users repository.UserRepository, packages repository.PackageRepository, statements repository.StatementRepository, blobs blob.Store, fetchTimeout time.Duration, logger *slog.Logger) Service {
	return Service{
		users:        users,
		packages:     packages,
		statements:   statements,
		blobs:        blobs,
		fetchTimeout: fetchTimeout,
		logger:       logger,
	}
}

// Bundle fetches every statement file in a client's package and zips
// them. Files that cannot be fetched are skipped; the bundle fails only
// when nothing at all could be retrieved.
func (s Service) Bundle(ctx context.Context, clientID, packageID string) (*Archive, error) {
	pkg, err := s.packages.GetPackageForUser(ctx, packageID, clientID)
	if err != nil {
		return nil, err
	}
	stmts, err := s.statements.ListStatementsByPackage(ctx, pkg.ID)
	if err != nil {
		return nil, err
	}
	if len(stmts) == 0 {
		return nil, domain.ErrEmptyPackage
	}

	type fetched struct {
		name    string
		content []byte
	}
	results := make([]*fetched, len(stmts))
	var wg sync.WaitGroup
	for i, stmt := range stmts {
		wg.Add(1)
		go func(i int, stmt domain.Statement) {
			defer wg.Done()
			fetchCtx := ctx
			if s.fetchTimeout > 0 {
				var cancel context.CancelFunc
				fetchCtx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
				defer cancel()
			}
			content, err := s.blobs.Fetch(fetchCtx, stmt.FileURL)
			if err != nil {
				s.logger.Error("failed to fetch statement file",
					"statement_id", stmt.ID, "url", stmt.FileURL, "error", err)
				return
			}
			results[i] = &fetched{name: stmt.FileName, content: content}
		}(i, stmt)
	}
	wg.Wait()

	// Entry names are unique within a zip. Results are in upload order,
	// so on a file name collision the most recent upload wins.
	contents := make(map[string][]byte)
	order := make([]string, 0, len(results))
	fetchedCount := 0
	for _, f := range results {
		if f == nil {
			continue
		}
		fetchedCount++
		if _, seen := contents[f.name]; !seen {
			order = append(order, f.name)
		}
		contents[f.name] = f.content
	}
	if len(order) == 0 {
		return nil, domain.ErrBundlingFailed
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		w, err := zw.Create(name)
		if err != nil {
			zw.Close()
			return nil, fmt.Errorf("add %s to archive: %w", name, err)
		}
		if _, err := w.Write(contents[name]); err != nil {
			zw.Close()
			return nil, fmt.Errorf("write %s to archive: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}

	client, err := s.users.GetUserByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("bundle assembled",
		"package_id", pkg.ID, "files", len(order), "skipped", len(stmts)-fetchedCount, "bytes", buf.Len())
	return &Archive{
		Name:    ArchiveName(client.Name, pkg.Month, pkg.Year),
		Content: buf.Bytes(),
	}, nil
}

// ArchiveName derives the download file name from the client's display
// name and the package period.
func ArchiveName(clientName string, month, year int) string {
	slug := slugify(clientName)
	if slug == "" {
		slug = "client"
	}
	abbr := "unknown"
	if name := domain.MonthName(month); name != "" {
		abbr = strings.ToLower(name[:3])
	}
	return fmt.Sprintf("%s-stmts-%s-%d.zip", slug, abbr, year)
}

// slugify lowercases the name and collapses whitespace runs to single
// hyphens. Other characters pass through unchanged.
func slugify(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}
