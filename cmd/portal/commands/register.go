package commands

import (
	"errors"
	"fmt"
	"os"

	portal "github.com/goliatone/go-auth-portal"
	"github.com/spf13/cobra"
)

type registerOptions struct {
	accountType string
	name        string
	username    string
	email       string
	phone       string
	password    string
	image       string
}

// registerCmd drives the registration wizard step by step, so the same
// gates and messages apply as in the browser.
func (c *cli) registerCmd() *cobra.Command {
	opts := registerOptions{}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account through the registration wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := c.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.close()

			wizard := portal.NewWizard(sess.store,
				portal.WithPhoneRegion(c.cfg.Wizard.PhoneRegion),
				portal.WithMaxImageBytes(c.cfg.Wizard.MaxImageBytes),
				portal.WithWizardLogger(c.log("wizard")),
			)

			if err := fillWizard(wizard, opts); err != nil {
				return err
			}

			if opts.image == "" {
				err = wizard.Skip(cmd.Context())
			} else {
				err = wizard.Submit(cmd.Context())
			}
			if err != nil {
				return stepFailure(wizard, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Account created, welcome %s!\n", sess.store.User().Name)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.accountType, "type", string(portal.AccountIndividual), "account type: individual (b2c) or business (b2b)")
	f.StringVar(&opts.name, "name", "", "full name, or company name for business accounts")
	f.StringVar(&opts.username, "username", "", "username")
	f.StringVar(&opts.email, "email", "", "email")
	f.StringVar(&opts.phone, "phone", "", "phone number")
	f.StringVar(&opts.password, "password", "", "password")
	f.StringVar(&opts.image, "image", "", "profile picture file")
	return cmd
}

func fillWizard(w *portal.Wizard, opts registerOptions) error {
	accountType := portal.ParseAccountType(opts.accountType)
	if accountType == "" {
		return fmt.Errorf("unknown account type %q", opts.accountType)
	}
	w.SetAccountType(accountType)

	details := [][2]string{
		{portal.FieldDisplayName, opts.name},
		{portal.FieldUsername, opts.username},
		{portal.FieldEmail, opts.email},
		{portal.FieldPhoneNumber, opts.phone},
	}
	if err := setFields(w, details); err != nil {
		return err
	}
	if err := w.Next(); err != nil {
		return stepFailure(w, err)
	}

	credentials := [][2]string{
		{portal.FieldPassword, opts.password},
		{portal.FieldConfirmPassword, opts.password},
	}
	if err := setFields(w, credentials); err != nil {
		return err
	}
	if err := w.Next(); err != nil {
		return stepFailure(w, err)
	}

	if opts.image == "" {
		return nil
	}
	data, err := os.ReadFile(opts.image)
	if err != nil {
		return fmt.Errorf("read profile picture: %w", err)
	}
	if err := w.AttachImage(data); err != nil {
		return stepFailure(w, err)
	}
	return nil
}

func setFields(w *portal.Wizard, fields [][2]string) error {
	for _, kv := range fields {
		if err := w.SetField(kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

// stepFailure reports the wizard message, which is what a browser user sees.
func stepFailure(w *portal.Wizard, err error) error {
	if stepErr := w.Error(); stepErr != nil && stepErr.Message != "" {
		return fmt.Errorf("%s: %s", w.Step(), stepErr.Message)
	}
	var stepErr *portal.StepError
	if errors.As(err, &stepErr) {
		return fmt.Errorf("%s: %s", w.Step(), stepErr.Message)
	}
	return err
}
