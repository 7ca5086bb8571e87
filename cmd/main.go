package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"papertrader/cmd/engine"
	"papertrader/cmd/seed"
	"papertrader/src/security"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Papertrader CMD"
	app.Usage = "The papertrader command line interface"

	app.Commands = []cli.Command{
		engineCMD,
		seedCMD,
		encryptCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	engineCMD = cli.Command{
		Name:        "engine",
		Usage:       "run the decision engine loop",
		Action:      engineAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the decision engine loop without the HTTP server`,
	}
	seedCMD = cli.Command{
		Name:        "seed",
		Usage:       "provision demo portfolios",
		Action:      seedAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Write the demo portfolio set into the state file`,
	}
	encryptCMD = cli.Command{
		Name:        "encrypt",
		Usage:       "encrypt a secret for env config",
		Action:      encryptAction,
		ArgsUsage:   "SECRET",
		Flags:       []cli.Flag{},
		Description: `Encrypt a secret (e.g. the signal API key) for use in SIGNAL_API_KEY_ENCRYPTED`,
	}
)

func engineAction(_ *cli.Context) error {

	logrus.Info("Starting engine CMD")

	eng := &engine.Engine{}
	err := eng.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func seedAction(_ *cli.Context) error {

	logrus.Info("Starting seed CMD")

	s := &seed.Seed{}
	err := s.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

func encryptAction(c *cli.Context) error {
	secret := c.Args().First()
	if secret == "" {
		return errors.New("usage: encrypt SECRET")
	}

	encrypted, err := security.EncryptString(secret)
	if err != nil {
		logrus.WithError(err).Error("Failed to encrypt secret")
		return err
	}

	fmt.Println(encrypted)
	return nil
}
