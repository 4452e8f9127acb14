package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/simp-lee/epubslice"
	"github.com/simp-lee/epubslice/fetch"
	"github.com/simp-lee/epubslice/tempstore"
)

// manifest describes one extract run; it is written to manifest.yaml.
type manifest struct {
	Title    string          `yaml:"title,omitempty"`
	Source   string          `yaml:"source"`
	Chapters []manifestEntry `yaml:"chapters"`
}

type manifestEntry struct {
	Index    int             `yaml:"index"`
	Title    string          `yaml:"title"`
	File     string          `yaml:"file"`
	Images   []manifestImage `yaml:"images,omitempty"`
	Warnings []string        `yaml:"warnings,omitempty"`
}

type manifestImage struct {
	Source    string `yaml:"source"`
	File      string `yaml:"file"`
	MediaType string `yaml:"media_type,omitempty"`
}

type extractFlags struct {
	start, end         int
	startName, endName string
	noImages           bool
	concurrency        int
	out                string
}

func newExtractCommand(a *app) *cobra.Command {
	var f extractFlags

	cmd := &cobra.Command{
		Use:   "extract BOOK",
		Short: "Extract a range of chapters as XHTML files",
		Long: `Extract writes one NNN.xhtml file per selected chapter, the chapter's
images under the image prefix, and a manifest.yaml describing the run.

Indices are 1-based; negative indices count from the end (-1 is the last
entry). A name bound matches a title ignoring case and surrounding spaces
and wins over an index given for the same end.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("no-images") {
				a.cfg.Images.Disable = f.noImages
			}
			if flags.Changed("concurrency") {
				a.cfg.Images.Concurrency = f.concurrency
			}
			if flags.Changed("out") {
				a.cfg.Output.Dir = f.out
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			var r epubslice.Range
			r.Start = epubslice.BoundOf(changedInt(cmd, "start", f.start), f.startName)
			r.End = epubslice.BoundOf(changedInt(cmd, "end", f.end), f.endName)
			return a.extract(cmd, args[0], r)
		},
	}

	cmd.Flags().IntVar(&f.start, "start", 0, "first chapter index (negative counts from the end)")
	cmd.Flags().IntVar(&f.end, "end", 0, "last chapter index (negative counts from the end)")
	cmd.Flags().StringVar(&f.startName, "start-name", "", "first chapter title")
	cmd.Flags().StringVar(&f.endName, "end-name", "", "last chapter title")
	cmd.Flags().BoolVar(&f.noImages, "no-images", false, "drop images instead of downloading them")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "image downloads in flight per chapter")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output directory")
	return cmd
}

func changedInt(cmd *cobra.Command, name string, v int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}

func (a *app) extract(cmd *cobra.Command, path string, r epubslice.Range) error {
	ctx := cmd.Context()
	cfg := a.cfg
	logger := a.logger

	book, err := epubslice.Open(path, epubslice.WithLogger(logger))
	if err != nil {
		return err
	}
	defer book.Close()
	for _, w := range book.Warnings() {
		logger.Warn("book warning", "warning", w)
	}

	store, err := tempstore.New(nil, cfg.Output.TempDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Cleanup(); err != nil {
			logger.Warn("failed to remove temporary images", "dir", store.Dir(), "error", err)
		}
	}()

	client := fetch.NewClient(
		fetch.WithAttempts(cfg.Fetch.Attempts),
		fetch.WithDelay(cfg.Fetch.Delay, cfg.Fetch.MaxDelay),
		fetch.WithUserAgent(cfg.Fetch.UserAgent),
		fetch.WithTimeout(cfg.Fetch.Timeout),
		fetch.WithLogger(logger),
	)
	localizer := &epubslice.Localizer{
		Fetcher: fetch.Mux{
			"http":               client,
			"https":              client,
			"data":               fetch.Data{},
			epubslice.BookScheme: fetch.Archive{Files: book},
		},
		Store:         store,
		Concurrency:   cfg.Images.Concurrency,
		DisableImages: cfg.Images.Disable,
		Prefix:        cfg.Images.Prefix,
		Logger:        logger,
	}

	chapters, err := epubslice.Slice(ctx, book, r, localizer, epubslice.WithLogger(logger))
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	m := manifest{Title: book.Metadata().Title, Source: filepath.Base(path)}
	for _, ch := range chapters {
		entry, err := writeChapter(cfg.Output.Dir, store, ch)
		if err != nil {
			return err
		}
		m.Chapters = append(m.Chapters, entry)
		logger.Info("wrote chapter", "index", ch.Index, "title", ch.Entry.Title, "file", entry.File, "images", len(ch.Assets))
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Output.Dir, "manifest.yaml"), data, 0o644); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Extracted %d chapter(s) to %s\n", len(chapters), cfg.Output.Dir)
	return nil
}

// writeChapter renders ch into dir and moves its images out of the store.
func writeChapter(dir string, store *tempstore.Store, ch epubslice.Chapter) (manifestEntry, error) {
	entry := manifestEntry{
		Index:    ch.Index,
		Title:    ch.Entry.Title,
		File:     fmt.Sprintf("%03d.xhtml", ch.Index),
		Warnings: ch.Fragment.Warnings,
	}

	f, err := os.Create(filepath.Join(dir, entry.File))
	if err != nil {
		return entry, err
	}
	if err := ch.Fragment.Render(f); err != nil {
		f.Close()
		return entry, fmt.Errorf("render %s: %w", entry.File, err)
	}
	if err := f.Close(); err != nil {
		return entry, err
	}

	for _, asset := range ch.Assets {
		rel := filepath.FromSlash(asset.Ref)
		if !filepath.IsLocal(rel) {
			return entry, fmt.Errorf("image reference %q is not a local path", asset.Ref)
		}
		if err := copyAsset(store, asset.Name, filepath.Join(dir, rel)); err != nil {
			return entry, err
		}
		entry.Images = append(entry.Images, manifestImage{
			Source:    asset.Source.String(),
			File:      asset.Ref,
			MediaType: asset.MediaType,
		})
	}
	return entry, nil
}

func copyAsset(store *tempstore.Store, name, dst string) error {
	src, err := store.Open(name)
	if err != nil {
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("copy image %s: %w", name, err)
	}
	return out.Close()
}
