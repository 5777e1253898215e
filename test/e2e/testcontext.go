package e2e

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const spiffeID = "spiffe://example.org/host/web-1"

// Host describes the fake tools answering the agent.
type Host struct {
	// CachedFacts is printed by facter, FreshFacts when --no-cache is given.
	CachedFacts string
	FreshFacts  string
	FacterFails bool

	NormandieHealthy bool
	KnoxHealthy      bool

	Fleet bool
}

type TestContext struct {
	dir    string
	binary string
}

func CreateTestContext(dir string, binary string) TestContext {
	return TestContext{
		dir:    dir,
		binary: binary,
	}
}

// Setup writes the fake tools and the agent configuration for host.
func (c TestContext) Setup(host Host) error {
	facter := []string{
		`case "$*" in`,
		fmt.Sprintf(`  *--no-cache*) echo '%s' ;;`, host.FreshFacts),
		fmt.Sprintf(`  *) echo '%s' ;;`, host.CachedFacts),
		`esac`,
	}
	if host.FacterFails {
		facter = []string{`echo "facter: broken install" >&2`, `exit 1`}
	}

	facterPath, err := WriteScript(c.dir, "facter", facter...)
	if err != nil {
		return err
	}

	normandiePath, err := WriteScript(c.dir, "normandie", statusScript(host.NormandieHealthy)...)
	if err != nil {
		return err
	}

	knoxPath, err := WriteScript(c.dir, "knox", statusScript(host.KnoxHealthy)...)
	if err != nil {
		return err
	}

	conf := map[string]any{
		"inventory": map[string]any{
			"facterBin": facterPath,
		},
		"environment": map[string]any{
			"fleet": host.Fleet,
		},
		"security": map[string]any{
			"normandie": map[string]any{"command": []string{normandiePath}},
			"knox":      map[string]any{"command": []string{knoxPath}},
		},
	}

	b, err := json.Marshal(conf)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	err = os.WriteFile(c.configPath(), b, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// HostInfo runs the hostinfo command and decodes its output.
func (c TestContext) HostInfo() (map[string]any, error) {
	stdout, runErr := RunCommand(fmt.Sprintf("%s hostinfo --config %s", c.binary, c.configPath()), []string{"DEPLOYAGENT_LOGS_LEVEL=2"})

	ret := map[string]any{}

	if strings.TrimSpace(stdout) != "" {
		err := json.Unmarshal([]byte(stdout), &ret)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %q: %w", stdout, err)
		}
	}

	return ret, runErr
}

func (c TestContext) configPath() string {
	return filepath.Join(c.dir, "config.json")
}

func statusScript(healthy bool) []string {
	if healthy {
		return []string{fmt.Sprintf(`echo 'status: running, id: %s'`, spiffeID)}
	}

	return []string{`echo "not running" >&2`, `exit 3`}
}
