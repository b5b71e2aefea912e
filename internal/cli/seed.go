package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/foundernet/engine/internal/app"
	"github.com/foundernet/engine/internal/models"
	"github.com/foundernet/engine/internal/policy"
	"github.com/foundernet/engine/internal/services"
	"github.com/foundernet/engine/internal/validators"
	appErr "github.com/foundernet/engine/pkg/errors"
)

// Fixture is one identity to create with its initial profile.
type Fixture struct {
	Email    string         `yaml:"email"`
	Password string         `yaml:"password"`
	Profile  map[string]any `yaml:"profile"`
}

type fixtureFile struct {
	Founders []Fixture `yaml:"founders"`
}

// ParseFixtures reads a seed file. Profile keys use the API's JSON names.
func ParseFixtures(r io.Reader) ([]Fixture, error) {
	var f fixtureFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	for i, fx := range f.Founders {
		if fx.Email == "" || fx.Password == "" {
			return nil, fmt.Errorf("fixture %d: email and password are required", i)
		}
	}
	return f.Founders, nil
}

// Fields converts the profile map into provisioning fields.
func (fx Fixture) Fields() (models.FounderFields, error) {
	var fields models.FounderFields
	if len(fx.Profile) == 0 {
		return fields, nil
	}
	b, err := json.Marshal(fx.Profile)
	if err != nil {
		return fields, err
	}
	if err := json.Unmarshal(b, &fields); err != nil {
		return fields, fmt.Errorf("fixture %s profile: %w", fx.Email, err)
	}
	return fields, nil
}

type seedResult struct {
	Email     string `json:"email"`
	FounderID string `json:"founder_id"`
	Created   bool   `json:"created"`
}

func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Sign up and provision the identities listed in a fixture file",
		Long: `Sign up each fixture identity and provision its founder profile.

Re-running the same file is safe: existing identities are looked up by
email, whatever their password or confirmation state, and their profiles
merged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fh, err := os.Open(file)
			if err != nil {
				return WrapExitError(ExitCommandError, "open fixtures", err)
			}
			defer fh.Close()
			fixtures, err := ParseFixtures(fh)
			if err != nil {
				return WrapExitError(ExitCommandError, "read fixtures", err)
			}

			a, err := rootOpts.Open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			sd := newSeeder(a)
			results := make([]seedResult, 0, len(fixtures))
			for _, fx := range fixtures {
				res, err := sd.seed(cmd.Context(), fx)
				if err != nil {
					return WrapExitError(ExitFailure, "seed "+fx.Email, err)
				}
				results = append(results, res)
			}
			return emit(cmd.OutOrStdout(), rootOpts.Format, results, func(w io.Writer) error {
				for _, r := range results {
					state := "merged"
					if r.Created {
						state = "created"
					}
					if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", r.FounderID, r.Email, state); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "fixture YAML file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// seeder creates fixture identities and their profiles. Existing
// identities are resolved by email so a re-run does not depend on the
// fixture password still matching or the address being confirmed.
type seeder struct {
	identities  services.IdentityService
	lookup      identityLookup
	provisioner services.Provisioner
}

type identityLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.Identity, error)
}

func newSeeder(a *app.App) *seeder {
	return &seeder{identities: a.Identities, lookup: a.IdentityRepo, provisioner: a.Provisioner}
}

func (s *seeder) seed(ctx context.Context, fx Fixture) (seedResult, error) {
	fields, err := fx.Fields()
	if err != nil {
		return seedResult{}, err
	}

	created := true
	u, err := s.identities.SignUp(ctx, fx.Email, fx.Password)
	if appErr.IsCode(err, appErr.CodeAlreadyExists) {
		created = false
		u, err = s.existing(ctx, fx.Email)
	}
	if err != nil {
		return seedResult{}, err
	}

	f, err := s.provisioner.Provision(ctx, policy.As(u.ID), u.ID.String(), u.Email, fields)
	if err != nil {
		return seedResult{}, err
	}
	return seedResult{Email: f.Email, FounderID: f.ID.String(), Created: created}, nil
}

func (s *seeder) existing(ctx context.Context, email string) (*models.Identity, error) {
	email, err := validators.Email(email)
	if err != nil {
		return nil, err
	}
	return s.lookup.GetByEmail(ctx, email)
}
