package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/keyxmakerx/atlas/internal/config"
	"github.com/keyxmakerx/atlas/internal/entity"
	"github.com/keyxmakerx/atlas/internal/mediaclient"
	"github.com/keyxmakerx/atlas/internal/mediastore"
)

type commandContext struct {
	apiFlag *string
	logFlag *bool

	once   sync.Once
	config *config.Config
	client *mediaclient.Client
	err    error

	diag   *mediastore.DiagnosticLog
	stores []*mediastore.Store
}

func newCommandContext(apiFlag *string, logFlag *bool) *commandContext {
	return &commandContext{
		apiFlag: apiFlag,
		logFlag: logFlag,
		diag:    mediastore.NewDiagnosticLog(0, nil),
	}
}

func (c *commandContext) ensureClient() (*mediaclient.Client, *config.Config, error) {
	c.once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.err = err
			return
		}
		c.config = cfg

		base := cfg.APIBaseURL()
		if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
			base = *c.apiFlag
		}
		c.client, c.err = mediaclient.New(base, nil)
		c.diag.SetEnabled(c.logFlag != nil && *c.logFlag)
	})
	return c.client, c.config, c.err
}

// openStore builds and fetches the Store for the TYPE and ID arguments.
func (c *commandContext) openStore(cmd *cobra.Command, typeArg, idArg string) (*mediastore.Store, error) {
	ref, err := parseRef(typeArg, idArg)
	if err != nil {
		return nil, err
	}
	client, cfg, err := c.ensureClient()
	if err != nil {
		return nil, err
	}

	store := mediastore.New(ref, client, c.diag, mediastore.Options{
		PreviewDelay:    cfg.Media.PreviewDelay,
		BulkInterval:    cfg.Media.BulkInterval,
		LinkStaleAfter:  cfg.Media.LinkStaleAfter,
		ThumbStaleAfter: cfg.Media.ThumbnailStaleAfter,
	})
	c.stores = append(c.stores, store)

	store.Fetch(cmd.Context())
	if err := store.Err(); err != nil {
		return nil, fmt.Errorf("loading media of %s: %w", ref, err)
	}
	return store, nil
}

// finish waits for deferred previews and dumps the diagnostic log when asked.
func (c *commandContext) finish(out io.Writer) {
	for _, s := range c.stores {
		s.Wait()
	}
	if c.logFlag == nil || !*c.logFlag {
		return
	}
	lines := c.diag.Lines()
	if len(lines) == 0 {
		return
	}
	fmt.Fprintln(out)
	fmt.Fprint(out, renderLog(lines))
}

func parseRef(typeArg, idArg string) (entity.Ref, error) {
	return entity.NewRef(typeArg, idArg)
}
