// Package launchsettings reads the launch profiles of a .NET project from
// <project dir>/Properties/launchSettings.json.
//
// Parsing is field-name case-insensitive and ignores unknown fields. Profiles
// keep their declaration order. Loading never caches: every call reads the
// file again.
package launchsettings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/harshul/microrun/internal/failure"
)

// CommandKind is how a profile is launched.
type CommandKind int

const (
	KindUnknown CommandKind = iota
	RunAsProcess
	RunUnderIISExpress
)

func (k CommandKind) String() string {
	switch k {
	case RunAsProcess:
		return "Project"
	case RunUnderIISExpress:
		return "IISExpress"
	default:
		return "Unknown"
	}
}

// KindFromCommandName maps a launchSettings commandName to a CommandKind.
func KindFromCommandName(name string) CommandKind {
	switch {
	case strings.EqualFold(name, "Project"):
		return RunAsProcess
	case strings.EqualFold(name, "IISExpress"):
		return RunUnderIISExpress
	default:
		return KindUnknown
	}
}

// Profile is one named run configuration.
type Profile struct {
	Name                 string
	CommandName          string
	Kind                 CommandKind
	ApplicationURL       string
	CommandLineArgs      string
	LaunchURL            string
	LaunchBrowser        bool
	EnvironmentVariables map[string]string

	// FallbackURL is iisSettings.iisExpress.applicationUrl, used by IIS Express
	// profiles that declare no applicationUrl of their own.
	FallbackURL string
}

// URLs returns the semicolon separated application URLs.
func (p Profile) URLs() []string {
	raw := p.ApplicationURL
	if raw == "" && p.Kind == RunUnderIISExpress {
		raw = p.FallbackURL
	}
	var out []string
	for _, part := range strings.Split(raw, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ListenURL is the first application URL, or "" when none is declared.
func (p Profile) ListenURL() string {
	urls := p.URLs()
	if len(urls) == 0 {
		return ""
	}
	return urls[0]
}

// BrowseURL is the address a browser should open for this profile. An
// absolute launchUrl is used as is; a relative one is joined to ListenURL.
func (p Profile) BrowseURL() string {
	launch := strings.TrimSpace(p.LaunchURL)
	if launch != "" {
		if u, err := url.Parse(launch); err == nil && u.Scheme != "" {
			return launch
		}
	}
	base := p.ListenURL()
	if base == "" {
		return ""
	}
	if launch == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(launch, "/")
}

// Set is the ordered collection of a project's profiles.
type Set struct {
	order  []string
	byName map[string]Profile
}

// Len returns the number of profiles.
func (s Set) Len() int { return len(s.order) }

// Names returns profile names in declaration order.
func (s Set) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Get looks a profile up by its exact name.
func (s Set) Get(name string) (Profile, bool) {
	p, ok := s.byName[name]
	return p, ok
}

// First returns the first declared profile.
func (s Set) First() (Profile, bool) {
	if len(s.order) == 0 {
		return Profile{}, false
	}
	return s.byName[s.order[0]], true
}

// SettingsPath returns the launchSettings.json location for a project file.
func SettingsPath(projectFile string) string {
	return filepath.Join(filepath.Dir(projectFile), "Properties", "launchSettings.json")
}

// Load reads and parses the settings file that belongs to projectFile.
func Load(projectFile string) (Set, error) {
	path := SettingsPath(projectFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Set{}, failure.Newf(failure.ConfigNotFound, projectFile, "%s does not exist", path)
		}
		return Set{}, failure.New(failure.ConfigNotFound, projectFile, err)
	}
	set, err := Parse(data)
	if err != nil {
		return Set{}, failure.New(failure.ConfigMalformed, projectFile, err)
	}
	return set, nil
}

type settingsFile struct {
	Profiles    *orderedProfiles `json:"profiles"`
	IISSettings *struct {
		IISExpress *struct {
			ApplicationURL string `json:"applicationUrl"`
			SSLPort        int    `json:"sslPort"`
		} `json:"iisExpress"`
	} `json:"iisSettings"`
}

type rawProfile struct {
	CommandName          string            `json:"commandName"`
	LaunchBrowser        bool              `json:"launchBrowser"`
	LaunchURL            string            `json:"launchUrl"`
	ApplicationURL       string            `json:"applicationUrl"`
	CommandLineArgs      string            `json:"commandLineArgs"`
	EnvironmentVariables map[string]string `json:"environmentVariables"`
}

type orderedProfiles struct {
	order  []string
	byName map[string]rawProfile
}

func (o *orderedProfiles) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("profiles must be an object")
	}
	o.byName = make(map[string]rawProfile)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var raw rawProfile
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("profile %q: %w", name, err)
		}
		if _, seen := o.byName[name]; !seen {
			o.order = append(o.order, name)
		}
		o.byName[name] = raw
	}
	_, err = dec.Token()
	return err
}

// utf8BOM prefixes the settings files Visual Studio writes.
var utf8BOM = []byte("\xEF\xBB\xBF")

// Parse decodes launchSettings.json content. A leading UTF-8 byte order mark
// is ignored.
func Parse(data []byte) (Set, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	var file settingsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return Set{}, err
	}
	if file.Profiles == nil {
		return Set{}, errors.New("no profiles key")
	}

	fallback := ""
	if file.IISSettings != nil && file.IISSettings.IISExpress != nil {
		fallback = file.IISSettings.IISExpress.ApplicationURL
	}

	set := Set{
		order:  make([]string, 0, len(file.Profiles.order)),
		byName: make(map[string]Profile, len(file.Profiles.order)),
	}
	for _, name := range file.Profiles.order {
		raw := file.Profiles.byName[name]
		env := make(map[string]string, len(raw.EnvironmentVariables))
		for k, v := range raw.EnvironmentVariables {
			env[k] = v
		}
		set.order = append(set.order, name)
		set.byName[name] = Profile{
			Name:                 name,
			CommandName:          raw.CommandName,
			Kind:                 KindFromCommandName(raw.CommandName),
			ApplicationURL:       raw.ApplicationURL,
			CommandLineArgs:      raw.CommandLineArgs,
			LaunchURL:            raw.LaunchURL,
			LaunchBrowser:        raw.LaunchBrowser,
			EnvironmentVariables: env,
			FallbackURL:          fallback,
		}
	}
	return set, nil
}
