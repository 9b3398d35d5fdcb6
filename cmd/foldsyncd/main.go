package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/foldsync/core/internal/access"
	"github.com/foldsync/core/internal/app"
	"github.com/foldsync/core/internal/apperr"
	"github.com/foldsync/core/internal/audit"
	"github.com/foldsync/core/internal/config"
	"github.com/foldsync/core/internal/drive"
	"github.com/foldsync/core/internal/invite"
	"github.com/foldsync/core/internal/logging"
	"github.com/foldsync/core/internal/model"
)

const version = "0.1.0"

func usage() {
	fmt.Printf(`foldsyncd - a peer-to-peer shared folder synchronizer.

Usage: foldsyncd [options] <command> [args]

Commands:
  serve                       Run the daemon, syncing every known drive.
  init <path> <name>          Create a new shared drive rooted at path.
  join <path> <token>         Join a drive using an invite token.
  invite <drive-hex> <permission> <validity>
                               Print a signed, base64 invite token.

Valid options:
`)
	flag.PrintDefaults()
}

func main() {
	configPath := flag.StringP("config-file", "f", config.DefaultConfigPath(),
		"A YAML-formatted configuration file used by foldsyncd.")
	logLevel := flag.StringP("log", "l", "", "Logging level: trace, debug, info, warn, error, fatal.")
	dataDir := flag.StringP("data-dir", "d", "", "Override the configured data directory.")
	versionFlag := flag.BoolP("version", "v", false, "Display program version.")
	help := flag.BoolP("help", "h", false, "Display this help message.")
	flag.Usage = usage
	flag.Parse()

	if *help {
		flag.Usage()
		os.Exit(0)
	}
	if *versionFlag {
		fmt.Println("foldsyncd", version)
		os.Exit(0)
	}

	cfg := config.Load(*configPath)
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	logging.Init(cfg.LogLevel, cfg.LogPretty)
	log := logging.For("main")

	if len(flag.Args()) == 0 {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nNo command provided, exiting.")
		os.Exit(1)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize foldsyncd")
	}

	switch cmd, args := flag.Arg(0), flag.Args()[1:]; cmd {
	case "serve":
		runServe(a)
	case "init":
		runInit(a, args)
	case "join":
		runJoin(a, args)
	case "invite":
		runInvite(a, args)
	default:
		flag.Usage()
		fmt.Fprintf(os.Stderr, "\nUnknown command %q.\n", cmd)
		os.Exit(1)
	}
}

func runServe(a *app.App) {
	log := logging.For("main")
	ctx, cancel := context.WithCancel(context.Background())

	for _, d := range a.Drives.All() {
		if err := a.Sync.InitDrive(ctx, d); err != nil {
			log.Error().Err(err).Str("drive", d.ID.Hex()).Msg("failed to start sync for drive")
		}
	}
	a.Start(ctx)

	log.Info().Int("drives", len(a.Drives.All())).Msg("foldsyncd serving")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown reported an error")
	}
}

func runInit(a *app.App, args []string) {
	log := logging.For("main")
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: foldsyncd init <path> <name>")
		os.Exit(1)
	}
	path, name := args[0], args[1]
	absPath, err := filepath.Abs(path)
	if err != nil {
		log.Fatal().Err(err).Msg("could not resolve path")
	}
	if err := os.MkdirAll(absPath, 0700); err != nil {
		log.Fatal().Err(err).Msg("could not create local root")
	}

	owner := a.Identity.NodeID()
	driveID := drive.NewID(owner, absPath, time.Now().UnixMilli())

	d := model.SharedDrive{ID: driveID, Name: name, LocalRoot: absPath, OwnerNode: owner, CreatedAt: time.Now()}
	if err := a.Drives.Create(d); err != nil {
		log.Fatal().Err(err).Msg("could not register drive")
	}
	master, err := a.KeyVault.GenerateForOwner(driveID, a.KeyExchange.PublicKey())
	if err != nil {
		log.Fatal().Err(err).Msg("could not generate drive key")
	}
	a.Ciphers.Register(driveID, master)
	a.ACLs.For(driveID, owner)

	if _, err := a.Audit.Record(audit.EventDriveAccessed, driveID, owner, audit.DriveAccessedPayload{Path: absPath}); err != nil {
		log.Warn().Err(err).Msg("failed to record audit entry")
	}

	fmt.Println(driveID.Hex())
}

func runJoin(a *app.App, args []string) {
	log := logging.For("main")
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: foldsyncd join <path> <token>")
		os.Exit(1)
	}
	path, tokenStr := args[0], args[1]
	absPath, err := filepath.Abs(path)
	if err != nil {
		log.Fatal().Err(err).Msg("could not resolve path")
	}
	if err := os.MkdirAll(absPath, 0700); err != nil {
		log.Fatal().Err(err).Msg("could not create local root")
	}

	tok, err := invite.Deserialize(tokenStr)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid invite token")
	}
	issuerPK := ed25519.PublicKey(tok.Payload.InviterNodeID[:])
	if err := invite.Accept(tok, issuerPK, a.InviteTracker); err != nil {
		log.Fatal().Err(err).Msg("invite rejected")
	}
	if err := a.PersistInviteTracker(); err != nil {
		log.Warn().Err(err).Msg("failed to persist invite tracker")
	}

	self := a.Identity.NodeID()
	d := model.SharedDrive{
		ID: tok.Payload.DriveID, Name: tok.Payload.DriveName, LocalRoot: absPath,
		OwnerNode: tok.Payload.InviterNodeID, CreatedAt: time.Now(),
	}
	if err := a.Drives.Create(d); err != nil {
		log.Fatal().Err(err).Msg("could not register drive")
	}

	acl := a.ACLs.For(tok.Payload.DriveID, tok.Payload.InviterNodeID)
	acl.Grant(self, access.AccessRule{
		Permission: tok.Payload.Permission, GrantedAt: time.Now(), GrantedByNode: tok.Payload.InviterNodeID,
	})

	if _, err := a.Audit.Record(audit.EventInviteAccepted, tok.Payload.DriveID, self, audit.InvitePayload{
		TokenID: tok.Payload.TokenID, Permission: tok.Payload.Permission,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to record audit entry")
	}

	fmt.Println(tok.Payload.DriveID.Hex())
}

func runInvite(a *app.App, args []string) {
	log := logging.For("main")
	if len(args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: foldsyncd invite <drive-hex> <permission> <validity-duration>")
		os.Exit(1)
	}
	driveID, err := model.DriveIDFromHex(args[0])
	if err != nil {
		log.Fatal().Err(err).Msg("invalid drive id")
	}
	perm, ok := model.ParsePermission(args[1])
	if !ok {
		log.Fatal().Msg("invalid permission, expected Read, Write, Manage or Admin")
	}
	validity, err := time.ParseDuration(args[2])
	if err != nil {
		log.Fatal().Err(err).Msg("invalid validity duration")
	}

	d, ok := a.Drives.Get(driveID)
	if !ok {
		log.Fatal().Err(apperr.NotFound("drive %s not found", driveID.Hex())).Msg("cannot invite")
	}

	tok, err := invite.Build(a.Identity.SigningKey(), driveID, d.Name, a.Identity.NodeID(), perm, validity, "", true, "")
	if err != nil {
		log.Fatal().Err(err).Msg("could not build invite")
	}
	wire, err := tok.Serialize()
	if err != nil {
		log.Fatal().Err(err).Msg("could not serialize invite")
	}

	if _, err := a.Audit.Record(audit.EventInviteCreated, driveID, a.Identity.NodeID(), audit.InvitePayload{
		TokenID: tok.Payload.TokenID, Permission: perm,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to record audit entry")
	}

	fmt.Println(wire)
}
