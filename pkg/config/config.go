// Package config loads per-class launcher settings from an INI file.
//
// The file holds one section per class plus an optional [General] section whose
// keys act as defaults for every class. Section names are case-sensitive; keys
// are not. Values are parsed into a typed Class at load time so the rest of the
// program never handles raw strings.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// GeneralSection is the reserved section whose keys apply to all classes.
const GeneralSection = "General"

// Class is the effective configuration for one class, after merging the
// General section's defaults under the class section's own keys.
type Class struct {
	// Name is the section name the settings were loaded from.
	Name string

	// BaseURL is the portal root, scheme included.
	BaseURL string

	// Username and Password are the portal credentials.
	Username string
	Password string

	// CourseID identifies the course whose Collaborate page is opened.
	CourseID string

	// LaunchButton is the exact visible text of the session to join.
	LaunchButton string

	// HideUI launches the browser without its regular chrome.
	HideUI bool

	// RaspberryPi enables the hardware-acceleration pref set for low-power
	// devices.
	RaspberryPi bool

	// ProfilePicture, when set, is uploaded as the session avatar.
	ProfilePicture string

	// DriverPath optionally overrides where the automation driver lives.
	DriverPath string
}

// Load reads the settings file at path and returns the merged configuration
// for className. It fails with *ConfigError when the file or section is
// unusable and with *MissingFieldError when a required key is absent after
// merging.
func Load(path, className string) (*Class, error) {
	file, err := ini.LoadSources(ini.LoadOptions{InsensitiveKeys: true}, path)
	if err != nil {
		return nil, &ConfigError{Path: path, Reason: "cannot read settings file", Err: err}
	}

	merged := make(map[string]string)
	if general, generalErr := file.GetSection(GeneralSection); generalErr == nil {
		for key, value := range general.KeysHash() {
			merged[strings.ToLower(key)] = value
		}
	}

	section, err := file.GetSection(className)
	if err != nil {
		return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("no [%s] section", className)}
	}
	for key, value := range section.KeysHash() {
		merged[strings.ToLower(key)] = value
	}

	class := &Class{
		Name:           className,
		BaseURL:        merged["base_url"],
		Username:       merged["username"],
		Password:       merged["password"],
		CourseID:       merged["course_id"],
		LaunchButton:   merged["launch_button"],
		ProfilePicture: merged["profile_picture"],
		DriverPath:     merged["driver_path"],
	}

	required := []struct {
		key   string
		value string
	}{
		{"base_url", class.BaseURL},
		{"username", class.Username},
		{"password", class.Password},
		{"course_id", class.CourseID},
		{"launch_button", class.LaunchButton},
	}
	for _, field := range required {
		if field.value == "" {
			return nil, &MissingFieldError{Class: className, Field: field.key}
		}
	}

	parsed, err := url.Parse(class.BaseURL)
	if err != nil || parsed.Scheme == "" {
		return nil, &ConfigError{Path: path, Reason: fmt.Sprintf("base_url %q must include a scheme", class.BaseURL)}
	}

	if class.HideUI, err = parseBool(merged, "hide_ui"); err != nil {
		return nil, &ConfigError{Path: path, Reason: err.Error()}
	}
	if class.RaspberryPi, err = parseBool(merged, "raspberry_pi"); err != nil {
		return nil, &ConfigError{Path: path, Reason: err.Error()}
	}

	return class, nil
}

// parseBool reads an optional boolean key, defaulting to false when unset.
func parseBool(merged map[string]string, key string) (bool, error) {
	raw, ok := merged[key]
	if !ok || raw == "" {
		return false, nil
	}
	value, err := strconv.ParseBool(strings.ToLower(raw))
	if err != nil {
		return false, fmt.Errorf("%s has non-boolean value %q", key, raw)
	}
	return value, nil
}
