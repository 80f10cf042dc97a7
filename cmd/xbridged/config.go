// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/blocknetdx/xbridge-go"
	"github.com/decred/dcrd/dcrutil/v4"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "xbridged.conf"
	defaultLogFilename    = "xbridged.log"
	defaultKeyFilename    = "session.key"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultMaxLogZips     = 16
)

var defaultAppDataDir = dcrutil.AppDataDir("xbridged", false)

// xbridgedConf is everything the running Session needs once flags and an
// optional config file have been parsed and validated.
type xbridgedConf struct {
	IsHub           bool
	Currencies      []string
	KeyFilePath     string
	DecredKeyFormat bool
	LogMaker        *xbridge.LoggerMaker
	Demo            bool
	LogDir          string
	MaxLogZips      int
}

type flagsData struct {
	AppDataDir  string `short:"A" long:"appdata" description:"Path to application home directory"`
	ConfigFile  string `short:"C" long:"configfile" description:"Path to configuration file"`
	LogDir      string `long:"logdir" description:"Directory to log output."`
	DebugLevel  string `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}, with optional per-subsystem overrides, e.g. info,SESS=debug"`
	MaxLogZips  int    `long:"maxlogzips" description:"The number of zipped log files created by the log rotator to be retained. Setting to 0 will keep all."`
	ShowVersion bool   `short:"V" long:"version" description:"Display version information and exit"`

	Hub             bool     `long:"hub" description:"Run as the Hub session rather than a trader session"`
	Currencies      []string `long:"currency" description:"Ticker of a currency this session trades, e.g. --currency=BLOCK --currency=LTC (repeatable)"`
	KeyFilePath     string   `long:"keyfile" description:"Path to this session's signing key file"`
	DecredKeyFormat bool     `long:"decredkeyformat" description:"Interpret an existing keyfile's scalar using Decred's secp256k1 encoding rather than btcec's"`
	Demo            bool     `long:"demo" description:"Run a self-contained local demo swap instead of connecting to a real network"`
}

// supportedSubsystems lists the logging subsystem identifiers a -d override
// may target, for the error message when an unknown one is given.
func supportedSubsystems() []string {
	subsystems := []string{"MAIN", "SESS", "HUB", "TRDR", "WAIT", "LOCK"}
	sort.Strings(subsystems)
	return subsystems
}

// loadConfig parses CLI flags, then an INI config file, then CLI flags
// again so the command line always wins, following
// server/cmd/dcrdex/config.go's own precedence exactly.
func loadConfig() (*xbridgedConf, error) {
	cfg := flagsData{
		AppDataDir: defaultAppDataDir,
		MaxLogZips: defaultMaxLogZips,
		DebugLevel: defaultLogLevel,
		KeyFilePath: defaultKeyFilename,
	}

	var preCfg flagsData
	preParser := flags.NewParser(&preCfg, flags.HelpFlag)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type != flags.ErrHelp {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		} else if ok && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
	}

	if preCfg.ShowVersion {
		fmt.Printf("xbridged version %s (Go version %s %s/%s)\n",
			Version(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	if preCfg.AppDataDir != "" {
		cfg.AppDataDir, err = filepath.Abs(preCfg.AppDataDir)
		if err != nil {
			return nil, fmt.Errorf("unable to determine working directory: %w", err)
		}
	}
	isDefaultConfigFile := preCfg.ConfigFile == ""
	if isDefaultConfigFile {
		preCfg.ConfigFile = filepath.Join(cfg.AppDataDir, defaultConfigFilename)
	} else if !filepath.IsAbs(preCfg.ConfigFile) {
		preCfg.ConfigFile = filepath.Join(cfg.AppDataDir, preCfg.ConfigFile)
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := os.Stat(preCfg.ConfigFile); os.IsNotExist(err) {
		if !isDefaultConfigFile {
			return nil, err
		}
		fmt.Printf("Config file (%s) does not exist. Using defaults.\n", preCfg.ConfigFile)
	} else {
		if err := flags.NewIniParser(parser).ParseFile(preCfg.ConfigFile); err != nil {
			if _, ok := err.(*os.PathError); !ok {
				parser.WriteHelp(os.Stderr)
				return nil, err
			}
		}
	}

	if _, err = parser.Parse(); err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, err
	}

	if err := os.MkdirAll(cfg.AppDataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create home directory: %w", err)
	}
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.AppDataDir, defaultLogDirname)
	} else if !filepath.IsAbs(cfg.LogDir) {
		cfg.LogDir = filepath.Join(cfg.AppDataDir, cfg.LogDir)
	}
	if cfg.MaxLogZips < 0 {
		cfg.MaxLogZips = 0
	}
	if !filepath.IsAbs(cfg.KeyFilePath) {
		cfg.KeyFilePath = filepath.Join(cfg.AppDataDir, cfg.KeyFilePath)
	}

	initLogRotator(filepath.Join(cfg.LogDir, defaultLogFilename), cfg.MaxLogZips)

	logMaker, err := xbridge.NewLoggerMaker(logWriter{}, cfg.DebugLevel)
	if err != nil {
		parser.WriteHelp(os.Stderr)
		return nil, fmt.Errorf("invalid --debuglevel %q (supported subsystems: %s): %w",
			cfg.DebugLevel, strings.Join(supportedSubsystems(), ", "), err)
	}

	currencies := cfg.Currencies
	if len(currencies) == 0 {
		currencies = []string{"BLOCK", "LTC"}
	}

	return &xbridgedConf{
		IsHub:           cfg.Hub,
		Currencies:      currencies,
		KeyFilePath:     cfg.KeyFilePath,
		DecredKeyFormat: cfg.DecredKeyFormat,
		LogMaker:        logMaker,
		Demo:            cfg.Demo,
		LogDir:          cfg.LogDir,
		MaxLogZips:      cfg.MaxLogZips,
	}, nil
}
