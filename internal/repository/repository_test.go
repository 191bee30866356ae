package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/specialistvlad/convergo/internal/config"
	"github.com/specialistvlad/convergo/internal/item"
	"github.com/specialistvlad/convergo/internal/metacache"
	"github.com/specialistvlad/convergo/internal/metadata"
	"github.com/specialistvlad/convergo/internal/node"
	"github.com/specialistvlad/convergo/internal/reactor"
	"github.com/specialistvlad/convergo/internal/registry"
	"github.com/specialistvlad/convergo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reactorModule struct{ reactors []reactor.Reactor }

func (m reactorModule) Register(r *registry.Registry) {
	for _, rc := range m.reactors {
		r.RegisterReactor(rc)
	}
}

func mustID(t *testing.T, raw string) item.ID {
	t.Helper()
	id, err := item.ParseID(raw)
	require.NoError(t, err)
	return id
}

// sampleModel declares:
//
//	all -> webservers -> frontend
//	web1 in frontend, web2 in webservers, db1 matched by pattern in databases
func sampleModel(t *testing.T) *config.Model {
	t.Helper()
	return &config.Model{
		Nodes: []*config.NodeDecl{
			{Name: "web1", Hostname: "10.0.0.1", Metadata: metadata.Map{"nginx": metadata.Map{"workers": int64(8)}}},
			{Name: "web2", Bundles: []string{"extra"}},
			{Name: "db1", Groups: []string{"all"}},
		},
		Groups: []*config.GroupDecl{
			{Name: "all", Subgroups: []string{"webservers"}, Metadata: metadata.Map{
				"nginx": metadata.Map{"workers": int64(1), "user": "www-data"},
				"apt":   metadata.Map{"packages": metadata.NewSet("curl")},
			}},
			{Name: "webservers", Subgroups: []string{"frontend"}, Members: []string{"web2"}, Bundles: []string{"nginx"}, Metadata: metadata.Map{
				"nginx": metadata.Map{"workers": int64(2)},
				"apt":   metadata.Map{"packages": metadata.NewSet("nginx")},
			}},
			{Name: "frontend", Members: []string{"web1"}, Metadata: metadata.Map{"nginx": metadata.Map{"workers": int64(4)}}},
			{Name: "databases", MemberPatterns: []string{"^db"}},
		},
		Bundles: []*config.BundleDecl{
			{
				Name:     "nginx",
				Defaults: metadata.Map{"nginx": metadata.Map{"port": int64(80), "workers": int64(0)}},
				Items: []*item.Declaration{
					{ID: mustID(t, "pkg_apt:nginx"), Bundle: "nginx", Attributes: map[string]item.Attr{}},
					{ID: mustID(t, "file:/etc/nginx/nginx.conf"), Bundle: "nginx", Attributes: map[string]item.Attr{
						"content": item.Resolver{
							Refs: [][]string{{"nginx", "workers"}},
							Fn: func(md metadata.Accessor, n node.Info) (any, error) {
								w, err := md.GetInt("nginx", "workers")
								if err != nil {
									return nil, err
								}
								return n.Name + ":" + string(rune('0'+w)), nil
							},
						},
					}},
				},
			},
			{Name: "extra"},
		},
	}
}

func newRepo(t *testing.T, model *config.Model, opts ...Option) *Repository {
	t.Helper()
	ctx, _ := testutil.Context(t)
	r, err := New(ctx, model, opts...)
	require.NoError(t, err)
	return r
}

func TestMembership(t *testing.T) {
	r := newRepo(t, sampleModel(t))

	web1, ok := r.NodeInfo("web1")
	require.True(t, ok)
	assert.Equal(t, []string{"all", "webservers", "frontend"}, web1.Groups)
	assert.Equal(t, []string{"nginx"}, web1.Bundles)
	assert.Equal(t, "10.0.0.1", web1.Hostname)

	web2, _ := r.NodeInfo("web2")
	assert.Equal(t, []string{"all", "webservers"}, web2.Groups)
	assert.Equal(t, []string{"extra", "nginx"}, web2.Bundles)
	assert.Equal(t, "web2", web2.Hostname)

	db1, _ := r.NodeInfo("db1")
	assert.Equal(t, []string{"all", "databases"}, db1.Groups)

	assert.Equal(t, []string{"db1", "web1", "web2"}, r.NodesInGroup("all"))
	assert.Equal(t, []string{"web1"}, r.NodesInGroup("frontend"))
	assert.Nil(t, r.NodesInGroup("nope"))
	assert.Equal(t, []string{"all", "databases", "frontend", "webservers"}, r.GroupNames())
	assert.Equal(t, []string{"extra", "nginx"}, r.BundleNames())
	assert.Len(t, r.Nodes(), 3)
}

func TestFacadeQueries(t *testing.T) {
	r := newRepo(t, sampleModel(t))

	assert.True(t, r.InGroup("web1", "webservers"))
	assert.False(t, r.InGroup("db1", "webservers"))
	assert.False(t, r.InGroup("ghost", "all"))
	assert.True(t, r.InAnyGroup("db1", "frontend", "databases"))
	assert.False(t, r.InAnyGroup("db1"))

	assert.Equal(t, []string{"web1", "web2"}, r.NodesInAllGroups("all", "webservers"))
	assert.Equal(t, []string{"web1"}, r.NodesInAllGroups("webservers", "frontend"))
	assert.Nil(t, r.NodesInAllGroups())
	assert.Equal(t, []string{"db1", "web1"}, r.NodesInAnyGroup("frontend", "databases"))

	assert.True(t, r.HasBundle("web1", "nginx"))
	assert.False(t, r.HasBundle("web1", "extra"))
	assert.True(t, r.HasAnyBundle("web1", "extra", "nginx"))
	assert.False(t, r.HasAnyBundle("db1", "extra", "nginx"))

	ctx, _ := testutil.Context(t)
	it, err := r.GetItem(ctx, "web1", "file:/etc/nginx/nginx.conf")
	require.NoError(t, err)
	assert.Equal(t, "web1:8", it.Attributes["content"])

	_, err = r.GetItem(ctx, "web1", "file:/nope")
	require.Error(t, err)
	_, err = r.GetItem(ctx, "db1", "pkg_apt:nginx")
	require.Error(t, err)
}

func TestStaticMetadataLayering(t *testing.T) {
	r := newRepo(t, sampleModel(t))

	md, ok := r.StaticMetadata("web1")
	require.True(t, ok)
	acc := metadata.NewAccessor(md)

	workers, err := acc.GetInt("nginx", "workers")
	require.NoError(t, err)
	assert.Equal(t, int64(8), workers, "node metadata overrides groups")

	port, err := acc.GetInt("nginx", "port")
	require.NoError(t, err)
	assert.Equal(t, int64(80), port, "bundle defaults fill gaps")

	user, _ := acc.GetString("nginx", "user")
	assert.Equal(t, "www-data", user)

	pkgs, err := acc.GetSet("apt", "packages")
	require.NoError(t, err)
	assert.Equal(t, []string{"curl", "nginx"}, pkgs.Strings())

	md, _ = r.StaticMetadata("web2")
	workers, _ = metadata.NewAccessor(md).GetInt("nginx", "workers")
	assert.Equal(t, int64(2), workers, "subgroup overrides parent group")

	_, ok = r.StaticMetadata("ghost")
	assert.False(t, ok)
}

func TestConfigurationErrors(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(m *config.Model)
		want   string
	}{
		{"unknown member", func(m *config.Model) { m.Groups[3].Members = []string{"ghost"} }, `unknown member node "ghost"`},
		{"unknown subgroup", func(m *config.Model) { m.Groups[3].Subgroups = []string{"ghost"} }, `unknown subgroup "ghost"`},
		{"unknown node group", func(m *config.Model) { m.Nodes[0].Groups = []string{"ghost"} }, `unknown group "ghost"`},
		{"unknown node bundle", func(m *config.Model) { m.Nodes[0].Bundles = []string{"ghost"} }, `unknown bundle "ghost"`},
		{"unknown group bundle", func(m *config.Model) { m.Groups[0].Bundles = []string{"ghost"} }, `unknown bundle "ghost"`},
		{"unknown reactor", func(m *config.Model) { m.Bundles[1].ReactorNames = []string{"ghost"} }, `unknown reactor "ghost"`},
		{"duplicate node", func(m *config.Model) { m.Nodes = append(m.Nodes, &config.NodeDecl{Name: "web1"}) }, "declared more than once"},
		{"duplicate group", func(m *config.Model) { m.Groups = append(m.Groups, &config.GroupDecl{Name: "all"}) }, "declared more than once"},
		{"duplicate bundle", func(m *config.Model) { m.Bundles = append(m.Bundles, &config.BundleDecl{Name: "extra"}) }, "declared more than once"},
		{"node named like group", func(m *config.Model) { m.Nodes = append(m.Nodes, &config.NodeDecl{Name: "all"}) }, "same name as a group"},
		{"bad pattern", func(m *config.Model) { m.Groups[3].MemberPatterns = []string{"("} }, "invalid member pattern"},
		{"subgroup cycle", func(m *config.Model) { m.Groups[2].Subgroups = []string{"all"} }, "subgroup cycle: all -> webservers -> frontend -> all"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := sampleModel(t)
			tc.mutate(m)
			_, err := New(context.Background(), m)
			require.Error(t, err)
			cfgErr, ok := AsConfigurationError(err)
			require.True(t, ok, "got %T", err)
			assert.Contains(t, cfgErr.Error(), tc.want)
		})
	}
}

func TestItemCollision(t *testing.T) {
	m := sampleModel(t)
	m.Bundles[1].Items = []*item.Declaration{{ID: mustID(t, "pkg_apt:nginx"), Bundle: "extra"}}
	r := newRepo(t, m)

	_, err := r.Declarations("web1")
	require.NoError(t, err)

	_, err = r.Declarations("web2")
	cfgErr, ok := AsConfigurationError(err)
	require.True(t, ok)
	assert.Contains(t, cfgErr.Error(), `item pkg_apt:nginx is declared by bundles "extra" and "nginx"`)
}

func TestMetadataWithReactors(t *testing.T) {
	var calls atomic.Int32
	listen := reactor.NewFunc("listen", func(ctx context.Context, in reactor.Input) (metadata.Map, error) {
		calls.Add(1)
		port, err := in.Metadata.GetInt("nginx", "port")
		if err != nil {
			return nil, err
		}
		return metadata.Map{"nginx": metadata.Map{"listen": in.Node.Hostname + ":" + string(rune('0'+port%10))}}, nil
	})
	peers := reactor.NewFunc("nginx/peers", func(ctx context.Context, in reactor.Input) (metadata.Map, error) {
		return metadata.Map{"nginx": metadata.Map{"peers": metadata.NewSet(toAny(in.Repo.NodesInGroup("webservers"))...)}}, nil
	})

	m := sampleModel(t)
	m.Bundles[0].ReactorNames = []string{"listen"}
	m.Bundles[0].Reactors = []reactor.Reactor{peers}
	m.Bundles[1].ReactorNames = []string{"listen"}

	reg := registry.New(reactorModule{reactors: []reactor.Reactor{listen}})
	r := newRepo(t, m, WithRegistry(reg))
	ctx, _ := testutil.Context(t)

	md, err := r.Metadata(ctx, "web2")
	require.NoError(t, err)
	acc := metadata.NewAccessor(md)
	got, err := acc.GetString("nginx", "listen")
	require.NoError(t, err)
	assert.Equal(t, "web2:0", got)
	set, err := acc.GetSet("nginx", "peers")
	require.NoError(t, err)
	assert.Equal(t, []string{"web1", "web2"}, set.Strings())

	first := calls.Load()
	_, err = r.Metadata(ctx, "web2")
	require.NoError(t, err)
	assert.Equal(t, first, calls.Load(), "metadata is computed once per node")

	r.Invalidate("web2")
	_, err = r.Metadata(ctx, "web2")
	require.NoError(t, err)
	assert.Greater(t, calls.Load(), first)

	_, err = r.Metadata(ctx, "ghost")
	_, ok := AsConfigurationError(err)
	assert.True(t, ok)
}

func TestMetadataConcurrentCallersShareWork(t *testing.T) {
	var calls atomic.Int32
	slow := reactor.NewFunc("count", func(ctx context.Context, in reactor.Input) (metadata.Map, error) {
		calls.Add(1)
		return metadata.Map{"counted": true}, nil
	})
	m := sampleModel(t)
	m.Bundles[0].Reactors = []reactor.Reactor{slow}
	r := newRepo(t, m)
	ctx, _ := testutil.Context(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			md, err := r.Metadata(ctx, "web1")
			assert.NoError(t, err)
			assert.Equal(t, true, md["counted"])
		}()
	}
	wg.Wait()
	// One computation takes two passes: one to contribute, one to confirm.
	assert.LessOrEqual(t, calls.Load(), int32(2*10))
	r.Invalidate()
	before := calls.Load()
	_, err := r.Metadata(ctx, "web1")
	require.NoError(t, err)
	assert.Equal(t, before+2, calls.Load())
}

func TestMetadataCache(t *testing.T) {
	var calls atomic.Int32
	rc := reactor.NewFunc("count", func(ctx context.Context, in reactor.Input) (metadata.Map, error) {
		calls.Add(1)
		return metadata.Map{"counted": true}, nil
	})
	cache := metacache.NewMemory(0)
	ctx, _ := testutil.Context(t)

	m := sampleModel(t)
	m.Bundles[0].Reactors = []reactor.Reactor{rc}
	_, err := newRepo(t, m, WithCache(cache, "rev1")).Metadata(ctx, "web1")
	require.NoError(t, err)
	computed := calls.Load()

	md, err := newRepo(t, m, WithCache(cache, "rev1")).Metadata(ctx, "web1")
	require.NoError(t, err)
	assert.Equal(t, computed, calls.Load())
	assert.Equal(t, true, md["counted"])

	_, err = newRepo(t, m, WithCache(cache, "rev2")).Metadata(ctx, "web1")
	require.NoError(t, err)
	assert.Greater(t, calls.Load(), computed)
}

type sourcedReactor struct {
	*reactor.Func
	source string
}

func (r sourcedReactor) Fingerprint() string { return r.source }

func TestMetadataCacheTracksRepositoryChanges(t *testing.T) {
	var calls atomic.Int32
	dbHost := reactor.NewFunc("db_host", func(ctx context.Context, in reactor.Input) (metadata.Map, error) {
		calls.Add(1)
		info, _ := in.Repo.NodeInfo("db1")
		return metadata.Map{"db_host": info.Hostname}, nil
	})
	inline := func(source string) reactor.Reactor {
		return sourcedReactor{Func: reactor.NewFunc("nginx/inline", func(context.Context, reactor.Input) (metadata.Map, error) {
			return metadata.Map{"inline": source}, nil
		}), source: source}
	}
	model := func(dbHostname, source string) *config.Model {
		m := sampleModel(t)
		m.Nodes[2].Hostname = dbHostname
		m.Bundles[0].Reactors = []reactor.Reactor{dbHost, inline(source)}
		return m
	}
	cache := metacache.NewMemory(0)
	ctx, _ := testutil.Context(t)

	md, err := newRepo(t, model("10.0.0.5", "v1"), WithCache(cache, "rev1")).Metadata(ctx, "web1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", md["db_host"])
	computed := calls.Load()

	md, err = newRepo(t, model("10.0.0.5", "v1"), WithCache(cache, "rev1")).Metadata(ctx, "web1")
	require.NoError(t, err)
	assert.Equal(t, computed, calls.Load(), "unchanged repository hits the cache")

	md, err = newRepo(t, model("10.0.0.6", "v1"), WithCache(cache, "rev1")).Metadata(ctx, "web1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.6", md["db_host"], "another node's hostname changed")

	md, err = newRepo(t, model("10.0.0.6", "v2"), WithCache(cache, "rev1")).Metadata(ctx, "web1")
	require.NoError(t, err)
	assert.Equal(t, "v2", md["inline"], "inline reactor definition changed")
}

func TestMetadataErrorsPropagate(t *testing.T) {
	a := reactor.NewFunc("a", func(context.Context, reactor.Input) (metadata.Map, error) {
		return metadata.Map{"k": "a"}, nil
	})
	b := reactor.NewFunc("b", func(context.Context, reactor.Input) (metadata.Map, error) {
		return metadata.Map{"k": "b"}, nil
	})
	m := sampleModel(t)
	m.Bundles[0].Reactors = []reactor.Reactor{a, b}
	r := newRepo(t, m)
	ctx, _ := testutil.Context(t)

	_, err := r.ItemGraph(ctx, "web1")
	var conflict *reactor.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "k", conflict.Key)
}

func TestItemGraph(t *testing.T) {
	r := newRepo(t, sampleModel(t))
	ctx, _ := testutil.Context(t)

	g, err := r.ItemGraph(ctx, "web1")
	require.NoError(t, err)
	require.Equal(t, 2, g.Len())
	conf, ok := g.Item(mustID(t, "file:/etc/nginx/nginx.conf"))
	require.True(t, ok)
	assert.Equal(t, "web1:8", conf.Attributes["content"])
	_, ok = g.Item(mustID(t, "pkg_apt:nginx"))
	assert.True(t, ok)

	g, err = r.ItemGraph(ctx, "db1")
	require.NoError(t, err)
	assert.Equal(t, 0, g.Len())
}

func TestSelectNodes(t *testing.T) {
	r := newRepo(t, sampleModel(t))

	all, err := r.SelectNodes()
	require.NoError(t, err)
	assert.Equal(t, []string{"db1", "web1", "web2"}, all)

	got, err := r.SelectNodes("frontend", "db1", "web1")
	require.NoError(t, err)
	assert.Equal(t, []string{"db1", "web1"}, got)

	_, err = r.SelectNodes("ghost")
	_, ok := AsConfigurationError(err)
	assert.True(t, ok)
}

func TestRepositoryIsReactorView(t *testing.T) {
	var _ reactor.RepoView = (*Repository)(nil)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
