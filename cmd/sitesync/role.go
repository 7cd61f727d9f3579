// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/sitedb/sitesync/graph"
	"github.com/sitedb/sitesync/internal/config"
	"github.com/sitedb/sitesync/state"
)

var roleFlags = struct {
	site  string
	group string
}{}

var errNotGranted = errors.New("role not granted")

type callerRole struct {
	Role   string   `yaml:"role"`
	Sites  []string `yaml:"sites,omitempty"`
	Groups []string `yaml:"groups,omitempty"`
}

type callerSummary struct {
	Login       string       `yaml:"login"`
	Name        string       `yaml:"name,omitempty"`
	GlobalAdmin bool         `yaml:"globalAdmin"`
	Roles       []callerRole `yaml:"roles"`
}

func describeCaller(snap *graph.Snapshot) callerSummary {
	ret := callerSummary{
		GlobalAdmin: state.IsGlobalAdmin(snap),
	}
	if snap.WhoAmI != nil {
		ret.Login = snap.WhoAmI.Login
	}
	caller := snap.Caller()
	if caller == nil {
		return ret
	}
	ret.Name = caller.Fullname
	titles := make([]string, 0, len(caller.Roles))
	for title := range caller.Roles {
		titles = append(titles, title)
	}
	slices.Sort(titles)
	for _, title := range titles {
		pr := caller.Roles[title]
		cr := callerRole{Role: title}
		for _, site := range pr.Site {
			cr.Sites = append(cr.Sites, site.CanonicalName)
		}
		for _, group := range pr.Group {
			cr.Groups = append(cr.Groups, group.Name)
		}
		ret.Roles = append(ret.Roles, cr)
	}
	return ret
}

// checkRole answers a role query against snap
func checkRole(snap *graph.Snapshot, role string) (bool, error) {
	switch {
	case roleFlags.site != "" && roleFlags.group != "":
		return false, errors.New("--site and --group are mutually exclusive")
	case roleFlags.site != "":
		return state.HasSiteRole(snap, role, roleFlags.site), nil
	case roleFlags.group != "":
		return state.HasGroupRole(snap, role, roleFlags.group), nil
	default:
		return false, errors.New("one of --site or --group is required")
	}
}

func roleRun(cmd *cobra.Command, args []string, cfg *config.Config) error {
	logger := commonRun()
	snap, err := loadSnapshot(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return writeYAML(os.Stdout, describeCaller(snap))
	}
	ok, err := checkRole(snap, args[0])
	if err != nil {
		return err
	}
	fmt.Println(ok)
	if !ok {
		return errNotGranted
	}
	return nil
}

func roleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role [role]",
		Short: "Show the caller's roles, or check one role",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := roleRun(cmd, args, configOrExit(cmd)); err != nil {
				if !errors.Is(err, errNotGranted) {
					slog.Error(err.Error())
				}
				os.Exit(1)
			}
		},
	}
	cmd.Flags().
		StringVar(&roleFlags.site, "site", "", "site to check, by canonical or internal name")
	cmd.Flags().
		StringVar(&roleFlags.group, "group", "", "group to check")
	addTimeoutFlag(cmd)
	return cmd
}
