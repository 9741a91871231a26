package config

import (
	"strings"
)

// Environment is the URL set of one deployment of the identity provider and
// its demo relying parties.
type Environment struct {
	Name           string
	Persona        string
	OneTwoThree    string // 123done
	MyFavoriteBeer string
	Restmail       string
}

var namedEnvironments = map[string]Environment{
	"prod": {
		Name:           "prod",
		Persona:        "https://login.persona.org",
		OneTwoThree:    "http://123done.org",
		MyFavoriteBeer: "http://myfavoritebeer.org",
		Restmail:       defaultRestmailURL,
	},
	"stage": {
		Name:           "stage",
		Persona:        "https://login.anosrep.org",
		OneTwoThree:    "http://beta.123done.org",
		MyFavoriteBeer: "http://beta.myfavoritebeer.org",
		Restmail:       defaultRestmailURL,
	},
	"dev": {
		Name:           "dev",
		Persona:        "https://login.dev.anosrep.org",
		OneTwoThree:    "http://dev.123done.org",
		MyFavoriteBeer: "http://dev.myfavoritebeer.org",
		Restmail:       defaultRestmailURL,
	},
}

// FakeEnvName selects the in-process fake. Its URLs are only known once the
// fake is listening; see Config.UseFake.
const FakeEnvName = "fake"

// EnvironmentNames lists the named environments in run order.
var EnvironmentNames = []string{"dev", "stage", "prod"}

// LookupEnvironment resolves a named environment. Any other value is treated
// as the host prefix of an ephemeral deployment.
func LookupEnvironment(name string) Environment {
	name = strings.TrimSpace(strings.ToLower(name))
	if env, ok := namedEnvironments[name]; ok {
		return env
	}
	if name == FakeEnvName {
		return Environment{Name: FakeEnvName}
	}
	host := strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(name, "https://"), "http://"), "/")
	return Environment{
		Name:           host,
		Persona:        "https://" + host + ".personatest.org",
		OneTwoThree:    "http://" + host + ".123done.org",
		MyFavoriteBeer: "http://" + host + ".myfavoritebeer.org",
		Restmail:       defaultRestmailURL,
	}
}

// NamedEnvironments returns copies of dev, stage and prod.
func NamedEnvironments() []Environment {
	out := make([]Environment, 0, len(EnvironmentNames))
	for _, name := range EnvironmentNames {
		out = append(out, namedEnvironments[name])
	}
	return out
}

// SingleOriginEnvironment returns an environment where every service is
// mounted under one base URL, as served by the in-process fake.
func SingleOriginEnvironment(name, base string) Environment {
	base = strings.TrimRight(base, "/")
	return Environment{
		Name:           name,
		Persona:        base,
		OneTwoThree:    base + "/123done",
		MyFavoriteBeer: base + "/myfavoritebeer",
		Restmail:       base,
	}
}
