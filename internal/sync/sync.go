package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/conorfennell/flashdeck/internal/domain"
	"github.com/conorfennell/flashdeck/internal/gitsource"
	"github.com/conorfennell/flashdeck/internal/knol"
	"github.com/conorfennell/flashdeck/internal/parser"
	"github.com/conorfennell/flashdeck/internal/storage"
)

// DefaultFetchLimit bounds the number of git repositories fetched at once.
const DefaultFetchLimit = 4

// Report summarises one sync run.
type Report struct {
	Sources  int `json:"sources"`
	Inserted int `json:"inserted"`
	Orphaned int `json:"orphaned"`
	Errors   int `json:"errors"`
}

// Syncer reconciles deck sources into the database.
type Syncer struct {
	db         *storage.DB
	reposDir   string
	fetchLimit int
	log        *slog.Logger
	clock      func() time.Time

	// fetch updates a git checkout; replaced in tests.
	fetch func(ctx context.Context, logger *slog.Logger, url, localPath string) error
}

// NewSyncer creates a syncer that keeps git checkouts under reposDir.
func NewSyncer(db *storage.DB, reposDir string, fetchLimit int, logger *slog.Logger) *Syncer {
	if fetchLimit <= 0 {
		fetchLimit = DefaultFetchLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		db:         db,
		reposDir:   reposDir,
		fetchLimit: fetchLimit,
		log:        logger,
		clock:      func() time.Time { return time.Now().UTC() },
		fetch:      gitsource.Sync,
	}
}

// Run iterates over all sources and reconciles them. Git repositories are
// fetched concurrently; reconciliation into the database is sequential. A
// failing source is logged and counted but does not stop the others.
func (s *Syncer) Run(ctx context.Context) (*Report, error) {
	s.log.Info("Starting sync process for all sources...")
	sources, err := s.db.GetAllSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get sources: %w", err)
	}

	report := &Report{Sources: len(sources)}
	if len(sources) == 0 {
		s.log.Info("No sources configured")
		return report, nil
	}

	paths, fetchErrs, err := s.fetchAll(ctx, sources)
	if err != nil {
		return nil, err
	}

	for i, source := range sources {
		if fetchErrs[i] != nil {
			report.Errors++
			continue
		}
		source.Path = paths[i]
		stats, err := s.reconcile(ctx, source)
		if err != nil {
			s.log.Error("Error reconciling source", "source_id", source.ID, "path", source.Path, "error", err)
			report.Errors++
			continue
		}
		report.Inserted += stats.Inserted
		report.Orphaned += stats.Orphaned
		report.Errors += stats.Errors
	}

	s.log.Info("Sync process complete.",
		"sources", report.Sources,
		"inserted", report.Inserted,
		"orphaned", report.Orphaned,
		"errors", report.Errors,
	)
	return report, nil
}

// fetchAll resolves the local directory of every source, cloning or pulling
// git sources under the repos directory.
func (s *Syncer) fetchAll(ctx context.Context, sources []storage.Source) ([]string, []error, error) {
	paths := make([]string, len(sources))
	errs := make([]error, len(sources))

	var hasGit bool
	for _, src := range sources {
		hasGit = hasGit || src.Type == storage.SourceGit
	}
	if hasGit {
		if err := os.MkdirAll(s.reposDir, os.ModePerm); err != nil {
			return nil, nil, fmt.Errorf("failed to create repos directory: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.fetchLimit)

	for i, src := range sources {
		if src.Type != storage.SourceGit {
			paths[i] = src.Path
			continue
		}
		g.Go(func() error {
			local, err := gitURLToLocalPath(s.reposDir, src.Path)
			if err == nil {
				err = s.fetch(gctx, s.log, src.Path, local)
			}
			if err != nil {
				s.log.Error("Error syncing git repo", "url", src.Path, "error", err)
			}
			paths[i], errs[i] = local, err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return paths, errs, ctx.Err()
}

func (s *Syncer) reconcile(ctx context.Context, source storage.Source) (Report, error) {
	var stats Report

	deck, err := s.db.GetDeck(ctx, source.DeckID)
	if err != nil {
		return stats, err
	}
	if deck == nil || deck.Deleted() {
		return stats, fmt.Errorf("%w: %s", domain.ErrDeckNotFound, source.DeckID)
	}

	existing, err := s.db.GetCardsBySourceID(ctx, source.ID)
	if err != nil {
		return stats, fmt.Errorf("failed to get cards for source %d: %w", source.ID, err)
	}
	known := make(map[string]bool, len(existing))
	for _, c := range existing {
		known[c.Hash] = true
	}

	now := s.clock()
	found := make(map[string]bool)
	walkErr := filepath.WalkDir(source.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			return nil
		}

		fileCards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			s.log.Warn("Failed to parse file", "path", path, "error", parseErr)
			stats.Errors++
		}
		for _, parsed := range fileCards {
			hash := knol.Hash(parsed)
			if found[hash] {
				continue
			}
			found[hash] = true
			if known[hash] {
				continue
			}

			card := domain.NewCard(deck.ID, parsed.Type, parsed.Data, now)
			card.Hash = hash
			sourceID := source.ID
			card.SourceID = &sourceID
			if err := card.Validate(); err != nil {
				s.log.Warn("Skipping invalid card", "path", path, "error", err)
				stats.Errors++
				continue
			}
			if err := s.db.CreateCard(ctx, card); err != nil {
				s.log.Warn("Failed to insert card", "hash", hash, "error", err)
				stats.Errors++
				continue
			}
			s.log.Debug("New card found, inserted", "hash", hash, "front", card.Front())
			stats.Inserted++
		}
		return nil
	})
	if walkErr != nil {
		return stats, fmt.Errorf("error walking directory %s: %w", source.Path, walkErr)
	}

	for _, c := range existing {
		if found[c.Hash] {
			continue
		}
		s.log.Info("Orphaned card, deleting", "hash", c.Hash, "card_id", c.ID)
		if err := s.db.DeleteCard(ctx, c.ID, now); err != nil && !errors.Is(err, domain.ErrCardNotFound) {
			s.log.Warn("Failed to delete orphaned card", "card_id", c.ID, "error", err)
			stats.Errors++
			continue
		}
		stats.Orphaned++
	}

	if err := s.db.UpdateSourceLastScanned(ctx, source.ID, now); err != nil {
		s.log.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	s.log.Info("reconciliation complete",
		"path", source.Path,
		"parsed_cards", len(found),
		"inserted", stats.Inserted,
		"orphaned_deleted", stats.Orphaned,
		"errors", stats.Errors,
	)
	return stats, nil
}

// SourceType guesses whether path names a git repository or a local directory.
func SourceType(path string) string {
	if strings.HasSuffix(path, ".git") || strings.HasPrefix(path, "https://") ||
		strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "git@") {
		return storage.SourceGit
	}
	return storage.SourceLocal
}

func gitURLToLocalPath(baseDir, repoURL string) (string, error) {
	parsedURL, err := url.Parse(repoURL)
	if err != nil || (parsedURL.Scheme != "https" && parsedURL.Scheme != "http") {
		if strings.Contains(repoURL, "@") {
			parts := strings.Split(repoURL, ":")
			if len(parts) == 2 {
				hostAndUser := strings.Split(parts[0], "@")
				if len(hostAndUser) == 2 {
					host := hostAndUser[1]
					repoPath := strings.TrimSuffix(parts[1], ".git")
					return repoDir(baseDir, host, repoPath, repoURL)
				}
			}
		}
		return "", fmt.Errorf("could not parse git URL: %s", repoURL)
	}

	sanitizedPath := strings.TrimSuffix(parsedURL.Path, ".git")
	if sanitizedPath == "" || sanitizedPath == "/" {
		return "", fmt.Errorf("git URL has no repository path: %s", repoURL)
	}
	return repoDir(baseDir, parsedURL.Host, sanitizedPath, repoURL)
}

// repoDir joins baseDir/host/repoPath and rejects results that are not
// strictly below baseDir/host, since a failed clone removes the directory.
func repoDir(baseDir, host, repoPath, repoURL string) (string, error) {
	hostDir := filepath.Join(baseDir, host)
	dir := filepath.Join(hostDir, repoPath)
	if !below(baseDir, hostDir) || !below(hostDir, dir) {
		return "", fmt.Errorf("git URL escapes the repository directory: %s", repoURL)
	}
	return dir, nil
}

func below(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
