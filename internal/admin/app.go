// Package admin implements the operator command line: creating accounts
// directly in the database and printing the token verification key.
package admin

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/tors/internal/common"
	"github.com/dmitrijs2005/tors/internal/cryptox"
	"github.com/dmitrijs2005/tors/internal/logging"
	"github.com/dmitrijs2005/tors/internal/server/auth"
	"github.com/dmitrijs2005/tors/internal/server/config"
	"github.com/dmitrijs2005/tors/internal/server/services"
	"github.com/dmitrijs2005/tors/internal/server/store"
)

const usage = `usage: tors-admin <command> [args] [flags]

commands:
  register [user]   create an account (password is read from the terminal)
  pubkey            print the token verification key`

var ErrUsage = errors.New(usage)

type App struct {
	config *config.Config
	logger logging.Logger
	in     *bufio.Reader
	out    io.Writer
	fd     int
}

// NewApp returns an App reading answers from in and the password from the
// terminal behind fd.
func NewApp(c *config.Config, logger logging.Logger, in io.Reader, out io.Writer, fd int) *App {
	return &App{
		config: c,
		logger: logger,
		in:     bufio.NewReader(in),
		out:    out,
		fd:     fd,
	}
}

// Run executes the command named by args[0]. Flags may follow the command
// and its argument; they are consumed by the config loader.
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return ErrUsage
	}

	switch args[0] {
	case "register":
		userName := ""
		if len(args) > 1 && !strings.HasPrefix(args[1], "-") {
			userName = args[1]
		}
		return a.Register(ctx, userName)
	case "pubkey":
		return a.PublicKey(ctx)
	default:
		return ErrUsage
	}
}

func (a *App) openStore(ctx context.Context) (*store.Store, error) {
	st, err := store.Open(ctx, a.config.DatabasePath, a.logger)
	if err != nil {
		return nil, err
	}
	if err := st.EnsureSchema(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// Register prompts for anything not given and creates the account.
func (a *App) Register(ctx context.Context, userName string) error {
	var err error
	if userName == "" {
		userName, err = GetSimpleText(a.in, "Enter user name", a.out)
		if err != nil {
			return err
		}
	}

	password, err := GetPassword(a.out, a.fd, "Enter password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	repeat, err := GetPassword(a.out, a.fd, "Repeat password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(repeat)

	if !bytes.Equal(password, repeat) {
		return errors.New("passwords do not match")
	}

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	hasher := cryptox.NewPasswordHasher(cryptox.Argon2Params{
		MemoryKiB:   a.config.HashMemoryKiB,
		Iterations:  a.config.HashIterations,
		Parallelism: a.config.HashParallelism,
	})
	accounts := services.NewAccountService(st, hasher, a.logger, nil)

	account, err := accounts.Register(ctx, userName, string(password))
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "registered %s id=%s\n", account.UserName, account.ID)
	return nil
}

// PublicKey prints the base64 Ed25519 public key, creating the key pair if
// the database has none yet.
func (a *App) PublicKey(ctx context.Context) error {
	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	keys := auth.NewKeyManager(st, []byte(a.config.KeyEncryptionSecret), a.logger)
	if err := keys.Initialize(ctx); err != nil {
		return err
	}

	pub, err := keys.PublicKey()
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, base64.StdEncoding.EncodeToString(pub))
	return nil
}
