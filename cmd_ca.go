package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/addspin/tlsca/ca"
	"github.com/addspin/tlsca/cainterface"
	"github.com/urfave/cli/v3"
)

var caOperations = []struct {
	op    cainterface.Operation
	usage string
}{
	{cainterface.List, "List pending requests, or signed certificates with --all/--signed"},
	{cainterface.Sign, "Sign pending certificate requests"},
	{cainterface.Revoke, "Revoke certificates of the named hosts"},
	{cainterface.Destroy, "Remove every file the CA holds for the named hosts"},
	{cainterface.Generate, "Generate a key and a signed certificate for the named hosts"},
	{cainterface.Print, "Print the full text of certificates"},
	{cainterface.Fingerprint, "Print the digest of certificates or requests"},
	{cainterface.Verify, "Verify certificates against the CA chain and CRL"},
	{cainterface.Reinventory, "Rebuild the serial number inventory"},
}

func caCommand() *cli.Command {
	commands := make([]*cli.Command, 0, len(caOperations)+2)
	for _, operation := range caOperations {
		commands = append(commands, operationCommand(operation.op, operation.usage))
	}
	commands = append(commands, exportCommand(), autosignCommand())

	return &cli.Command{
		Name:     "ca",
		Usage:    "Manage the certificate authority",
		Commands: commands,
	}
}

func operationCommand(op cainterface.Operation, usage string) *cli.Command {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:    "all",
			Aliases: []string{"a"},
			Usage:   "apply to all hosts",
		},
		&cli.StringFlag{
			Name:  "digest",
			Usage: "digest algorithm for fingerprints, defaults to ca.digest",
		},
	}
	switch op {
	case cainterface.List:
		flags = append(flags, &cli.BoolFlag{
			Name:  "signed",
			Usage: "list only signed certificates",
		})
	case cainterface.Sign:
		flags = append(flags, &cli.BoolFlag{
			Name:  "allow-dns-alt-names",
			Usage: "sign requests carrying DNS alt names",
		})
	case cainterface.Generate:
		flags = append(flags, &cli.StringSliceFlag{
			Name:  "dns-alt-names",
			Usage: "DNS alt names for the generated certificate",
		})
	case cainterface.Revoke:
		flags = append(flags, &cli.StringFlag{
			Name:  "reason",
			Usage: "revocation reason",
			Value: ca.DefaultRevocationReason,
		})
	}

	return &cli.Command{
		Name:      string(op),
		Usage:     usage,
		ArgsUsage: "[host...]",
		Flags:     flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			env, err := openEnvironment(command)
			if err != nil {
				return err
			}
			defer env.Close()

			digest := command.String("digest")
			if digest == "" {
				digest = env.cfg.Digest
			}
			ifc, err := cainterface.New(op, subjectsFromCommand(command), cainterface.Options{
				Digest:           digest,
				AllowDNSAltNames: command.Bool("allow-dns-alt-names"),
				DNSAltNames:      command.StringSlice("dns-alt-names"),
				Out:              os.Stdout,
			})
			if err != nil {
				return err
			}

			var target cainterface.CertificateAuthority = env.authority
			if op == cainterface.Revoke {
				reason := command.String("reason")
				if !ca.ValidRevocationReason(reason) {
					return fmt.Errorf("unknown revocation reason %q", reason)
				}
				target = reasonedAuthority{Authority: env.authority, reason: reason}
			}
			return ifc.Apply(target)
		},
	}
}

// reasonedAuthority отзывает сертификаты с причиной, заданной оператором
type reasonedAuthority struct {
	*ca.Authority
	reason string
}

func (r reasonedAuthority) Revoke(name string) error {
	return r.RevokeWithReason(name, r.reason)
}

func subjectsFromCommand(command *cli.Command) cainterface.Subjects {
	switch {
	case command.Bool("all"):
		return cainterface.AllSubjects()
	case command.Bool("signed"):
		return cainterface.SignedSubjects()
	case command.NArg() > 0:
		return cainterface.Hosts(command.Args().Slice()...)
	}
	return cainterface.Subjects{}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export a generated host certificate with its key as PKCS#12",
		ArgsUsage: "<host>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "password",
				Usage:    "PKCS#12 password",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "output file, defaults to <host>.p12",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.NArg() != 1 {
				return errors.New("exactly one host is required")
			}
			name := command.Args().First()

			env, err := openEnvironment(command)
			if err != nil {
				return err
			}
			defer env.Close()

			data, err := env.authority.ExportPKCS12(name, command.String("password"))
			if err != nil {
				return err
			}
			out := command.String("out")
			if out == "" {
				out = name + ".p12"
			}
			if err := os.WriteFile(out, data, 0o600); err != nil {
				return fmt.Errorf("не удалось сохранить %s: %w", out, err)
			}
			fmt.Println(out)
			return nil
		},
	}
}

func autosignCommand() *cli.Command {
	return &cli.Command{
		Name:  "autosign",
		Usage: "Apply the autosign policy to every pending request",
		Action: func(ctx context.Context, command *cli.Command) error {
			env, err := openEnvironment(command)
			if err != nil {
				return err
			}
			defer env.Close()

			signed, err := env.authority.AutosignPending()
			if err != nil {
				return err
			}
			for _, name := range signed {
				fmt.Println(name)
			}
			return nil
		},
	}
}
