package hcl_adapter

import (
	"path/filepath"
	"testing"

	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/metadata"
	"github.com/specialistvlad/convergo/internal/reactor"
	"github.com/specialistvlad/convergo/internal/registry"
	"github.com/specialistvlad/convergo/internal/repository"
	"github.com/specialistvlad/convergo/internal/testutil"
	"github.com/specialistvlad/convergo/modules/hosts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inventoryHCL = `
node "web1" {
  hostname = "10.0.0.1"
  groups   = ["web"]
  metadata = { nginx = { workers = 4 } }
}

node "web2" {}

node "db1" {}

group "web" {
  members         = ["web2"]
  member_patterns = ["^web"]
  bundles         = ["nginx"]
  metadata        = { apt = { packages = toset(["curl"]) } }
}

metadata_policy {
  combine = ["users/admins"]
}
`

const nginxHCL = `
bundle "nginx" {
  defaults = { nginx = { port = 80 } }
  reactors = ["hosts"]

  reactor "listen" {
    metadata = { nginx = { listen = "${node.hostname}:${metadata.nginx.port}" } }
  }

  reactor "upstream" {
    when     = contains(node.groups, "web")
    metadata = { nginx = { upstream = upper(metadata.nginx.listen) } }
  }

  item "pkg_apt" "nginx" {}

  item "file" "/etc/nginx/nginx.conf" {
    content  = "worker_processes ${metadata.nginx.workers};"
    mode     = "0644"
    needs    = ["pkg_apt:nginx"]
    triggers = ["action:reload"]
    tags     = ["config"]
  }

  item "action" "reload" {
    command   = "systemctl reload nginx"
    triggered = true
  }
}
`

func TestLoadModel(t *testing.T) {
	ctx, _ := testutil.Context(t)
	dir := testutil.WriteFiles(t, map[string]string{
		"inventory.hcl":       inventoryHCL,
		"bundles/nginx.hcl":   nginxHCL,
		"bundles/README.md":   "not a repository file",
		"bundles/empty/x.hcl": "",
	})

	model, err := NewLoader().Load(ctx, dir, filepath.Join(dir, "missing"))
	require.NoError(t, err)

	require.Len(t, model.Nodes, 3)
	web1 := model.Nodes[0]
	assert.Equal(t, "web1", web1.Name)
	assert.Equal(t, "10.0.0.1", web1.Hostname)
	assert.Equal(t, []string{"web"}, web1.Groups)
	assert.Equal(t, metadata.Map{"nginx": metadata.Map{"workers": int64(4)}}, web1.Metadata)
	assert.Contains(t, web1.Source, "inventory.hcl:2")
	assert.Nil(t, model.Nodes[1].Metadata)

	require.Len(t, model.Groups, 1)
	web := model.Groups[0]
	assert.Equal(t, []string{"web2"}, web.Members)
	assert.Equal(t, []string{"^web"}, web.MemberPatterns)
	pkgs, err := metadata.NewAccessor(web.Metadata).GetSet("apt", "packages")
	require.NoError(t, err)
	assert.Equal(t, []string{"curl"}, pkgs.Strings())

	assert.Equal(t, []string{"users/admins"}, model.Policy.Combine)

	require.Len(t, model.Bundles, 1)
	b := model.Bundles[0]
	assert.Equal(t, "nginx", b.Name)
	assert.Equal(t, []string{"hosts"}, b.ReactorNames)
	require.Len(t, b.Reactors, 2)
	assert.Equal(t, "nginx/listen", b.Reactors[0].Name())
	assert.Equal(t, "nginx/upstream", b.Reactors[1].Name())

	require.Len(t, b.Items, 3)
	conf := b.Items[1]
	assert.Equal(t, "file:/etc/nginx/nginx.conf", conf.ID.String())
	assert.Equal(t, "nginx", conf.Bundle)
	assert.Equal(t, []string{"config"}, conf.Tags)
	require.Len(t, conf.Needs, 1)
	assert.Equal(t, "pkg_apt:nginx", conf.Needs[0].String())
	require.Len(t, conf.Triggers, 1)
	assert.Equal(t, item.Literal{Value: "0644"}, conf.Attributes["mode"])
	resolver, ok := conf.Attributes["content"].(item.Resolver)
	require.True(t, ok, "content references metadata")
	assert.Equal(t, [][]string{{"nginx", "workers"}}, resolver.Refs)
	assert.Equal(t, item.Literal{Value: true}, b.Items[2].Attributes["triggered"])
}

func TestLoadedRepository(t *testing.T) {
	ctx, _ := testutil.Context(t)
	dir := testutil.WriteFiles(t, map[string]string{
		"inventory.hcl": inventoryHCL,
		"nginx.hcl":     nginxHCL,
	})
	model, err := NewLoader().Load(ctx, dir)
	require.NoError(t, err)

	repo, err := repository.New(ctx, model, repository.WithRegistry(registry.New(&hosts.Module{})))
	require.NoError(t, err)

	md, err := repo.Metadata(ctx, "web1")
	require.NoError(t, err)
	acc := metadata.NewAccessor(md)
	listen, err := acc.GetString("nginx", "listen")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:80", listen)
	upstream, err := acc.GetString("nginx", "upstream")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:80", upstream)
	assert.True(t, acc.Has("hosts", "entries", "web2"))

	it, err := repo.GetItem(ctx, "web1", "file:/etc/nginx/nginx.conf")
	require.NoError(t, err)
	require.NoError(t, it.Err)
	assert.Equal(t, "worker_processes 4;", it.Attributes["content"])

	reload, err := repo.GetItem(ctx, "web1", "action:reload")
	require.NoError(t, err)
	assert.True(t, reload.Triggered)

	// web2 has no nginx.workers, so the content attribute cannot resolve.
	it, err = repo.GetItem(ctx, "web2", "file:/etc/nginx/nginx.conf")
	require.NoError(t, err)
	attrErr, ok := item.AsAttributeError(it.Err)
	require.True(t, ok)
	assert.Equal(t, "content", attrErr.Attribute)
	var missing *metadata.MissingKeyError
	require.ErrorAs(t, it.Err, &missing)
	assert.Equal(t, []string{"nginx", "workers"}, missing.Path)

	_, err = repo.ItemGraph(ctx, "db1")
	require.NoError(t, err)
}

func TestLoadErrors(t *testing.T) {
	testCases := []struct {
		name string
		hcl  string
		want string
	}{
		{
			name: "syntax error",
			hcl:  `node "a" {`,
			want: "failed to parse HCL file",
		},
		{
			name: "unknown top-level block",
			hcl:  `host "a" {}`,
			want: "Unsupported block type",
		},
		{
			name: "unknown node attribute",
			hcl:  `node "a" { colour = "red" }`,
			want: "Unsupported argument",
		},
		{
			name: "dynamic node metadata",
			hcl:  `node "a" { metadata = { x = metadata.y } }`,
			want: "Static value required",
		},
		{
			name: "dynamic needs",
			hcl: `bundle "b" {
  item "action" "a" {
    command = "true"
    needs   = [metadata.dep]
  }
}`,
			want: "Static value required",
		},
		{
			name: "unknown variable",
			hcl: `bundle "b" {
  item "action" "a" { command = var.cmd }
}`,
			want: "Unknown variable",
		},
		{
			name: "invalid item type",
			hcl: `bundle "b" {
  item "Bad-Type" "a" {}
}`,
			want: "Invalid item identifier",
		},
		{
			name: "invalid selector",
			hcl: `bundle "b" {
  item "action" "a" {
    command = "true"
    needs   = ["nope"]
  }
}`,
			want: "Invalid selector",
		},
		{
			name: "metadata must be an object",
			hcl:  `group "g" { metadata = ["x"] }`,
			want: "must be an object",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctx, _ := testutil.Context(t)
			dir := testutil.WriteFiles(t, map[string]string{"repo.hcl": tc.hcl})
			_, err := NewLoader().Load(ctx, dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestReactorWhenFalse(t *testing.T) {
	ctx, _ := testutil.Context(t)
	dir := testutil.WriteFiles(t, map[string]string{
		"repo.hcl": `
node "a" { bundles = ["b"] }
bundle "b" {
  reactor "off" {
    when     = false
    metadata = { x = 1 }
  }
  reactor "on" {
    when     = can(metadata.missing) ? false : true
    metadata = { y = try(metadata.missing, "fallback") }
  }
}`,
	})
	model, err := NewLoader().Load(ctx, dir)
	require.NoError(t, err)
	repo, err := repository.New(ctx, model)
	require.NoError(t, err)

	md, err := repo.Metadata(ctx, "a")
	require.NoError(t, err)
	assert.False(t, metadata.NewAccessor(md).Has("x"))
	assert.Equal(t, "fallback", md["y"])
}

func TestReactorFingerprintFollowsSource(t *testing.T) {
	ctx, _ := testutil.Context(t)
	fingerprint := func(body string) string {
		t.Helper()
		dir := testutil.WriteFiles(t, map[string]string{"repo.hcl": "bundle \"b\" {\n" + body + "\n}\n"})
		model, err := NewLoader().Load(ctx, dir)
		require.NoError(t, err)
		require.Len(t, model.Bundles[0].Reactors, 1)
		fp, ok := model.Bundles[0].Reactors[0].(reactor.Fingerprinter)
		require.True(t, ok)
		return fp.Fingerprint()
	}

	base := fingerprint(`reactor "r" { metadata = { x = 1 } }`)
	assert.Contains(t, base, "{ x = 1 }")
	assert.Equal(t, base, fingerprint(`reactor "r" { metadata = { x = 1 } }`))
	assert.NotEqual(t, base, fingerprint(`reactor "r" { metadata = { x = 2 } }`))
	assert.NotEqual(t, base, fingerprint(`reactor "r" {
  when     = true
  metadata = { x = 1 }
}`))
}
