package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artiklix/kirjasto-harvester/internal/harvest"
)

func testDiscovererConfig() DiscovererConfig {
	return DiscovererConfig{
		MenuContainer: "#vakionavi",
		MenuItemClass: "main-menu-item",
		ListKeyParam:  "p_teos",
		BaseURL:       "https://library.example/tk.koti",
	}
}

const menuPage = `<html><body>
<div id="vakionavi">
  <ul>
    <li>
      <a class="main-menu-item" href="#">Sairaudet</a>
      <a href="tk.selaus?p_teos=dlk">Yleiset sairaudet</a>
      <a href="tk.selaus?p_teos=khp">Hoito-ohjeet</a>
    </li>
    <li>
      <a class="main-menu-item" href="#">Laakkeet</a>
      <a href="tk.selaus?p_teos=far">Laakeopas</a>
    </li>
  </ul>
</div>
</body></html>`

func TestDiscoverParsesCategoriesAndSubcategories(t *testing.T) {
	t.Parallel()

	d := NewDiscoverer(testDiscovererConfig(), nil)
	nodes, err := d.Discover([]byte(menuPage))
	require.NoError(t, err)
	require.Len(t, nodes, 5)

	require.Equal(t, harvest.LevelCategory, nodes[0].Level)
	require.Equal(t, "Sairaudet", nodes[0].Name)

	sub := nodes[1]
	require.Equal(t, harvest.LevelSubcategory, sub.Level)
	require.Equal(t, "Yleiset sairaudet", sub.Name)
	require.Equal(t, []string{"Sairaudet"}, sub.Path)
	require.Equal(t, "dlk", sub.ListKey)
	require.Equal(t, "https://library.example/tk.selaus?p_teos=dlk", sub.Link)

	require.Equal(t, "Laakeopas", nodes[4].Name)
	require.Equal(t, []string{"Laakkeet"}, nodes[4].Path)
}

func TestDiscoverOrderIsStable(t *testing.T) {
	t.Parallel()

	d := NewDiscoverer(testDiscovererConfig(), nil)
	first, err := d.Discover([]byte(menuPage))
	require.NoError(t, err)
	second, err := d.Discover([]byte(menuPage))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestDiscoverMissingContainerIsParseError(t *testing.T) {
	t.Parallel()

	d := NewDiscoverer(testDiscovererConfig(), nil)
	nodes, err := d.Discover([]byte(`<html><body><p>nothing here</p></body></html>`))
	require.Empty(t, nodes)

	var parseErr *harvest.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestDiscoverEmptyMenuIsParseErrorNotCrash(t *testing.T) {
	t.Parallel()

	d := NewDiscoverer(testDiscovererConfig(), nil)
	nodes, err := d.Discover([]byte(`<html><body><div id="vakionavi"></div></body></html>`))
	require.Empty(t, nodes)

	var parseErr *harvest.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestDiscoverSkipsOrphanSubcategoryLinks(t *testing.T) {
	t.Parallel()

	page := `<div id="vakionavi">
		<a href="tk.selaus?p_teos=orphan">Orphan</a>
		<a class="main-menu-item" href="#">Cat</a>
		<a href="tk.selaus?p_teos=ok">Sub</a>
	</div>`
	d := NewDiscoverer(testDiscovererConfig(), nil)
	nodes, err := d.Discover([]byte(page))
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, "Cat", nodes[0].Name)
	require.Equal(t, "Sub", nodes[1].Name)
}
