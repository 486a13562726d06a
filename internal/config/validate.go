// Ergosync - Workout Reconciliation and Publication
// Copyright 2026 Ergosync contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ergosync/ergosync

package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for structural and cross-field errors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			ve := verrs[0]
			return fmt.Errorf("field %s failed %q validation", ve.Namespace(), ve.Tag())
		}
		return err
	}

	// Garmin needs either token files or interactive credentials.
	if c.Garmin.UseTokens {
		if c.Garmin.TokenPath == "" {
			return errors.New("garmin.token_path is required when garmin.use_tokens is set")
		}
	} else if c.Garmin.Username == "" || c.Garmin.Password == "" {
		return errors.New("garmin.username and garmin.password are required unless garmin.use_tokens is set")
	}

	// Strava needs at least one token to bootstrap the refresh flow.
	if c.Strava.RefreshToken == "" && c.Strava.AccessToken == "" {
		return errors.New("strava.refresh_token or strava.access_token is required")
	}

	return nil
}
