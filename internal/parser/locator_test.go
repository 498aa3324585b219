package parser

import (
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/weft-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const imageFirstPage = `<!DOCTYPE html>
<html><body>
<div id="ContentPlaceHolder1_itemsContainer">
	<div class="product-box">
		<img id="ContentPlaceHolder1_products_rptproducts_imgProductPic_0" data-lazy-src="/productsimages/corn.jpg">
		<a href="/corn-snack-i8085">חטיף תירס אורגני</a>
		<span class="price">₪ 12.90</span>
	</div>
	<div class="product-box">
		<img id="ContentPlaceHolder1_products_rptproducts_imgProductPic_1" src="/productsimages/rice.jpg">
		<a href="/about">קרא עוד</a>
		<a href="/rice-cakes">פריכיות אורז מלא ללא מלח</a>
		<span id="lblPrice_1">מחיר: 8,50 ש"ח</span>
	</div>
	<div class="product-box">
		<img id="ContentPlaceHolder1_products_rptproducts_imgProductPic_2" src="">
		<a href="/chocolate-i3">שוקולד מריר</a>
	</div>
</div>
</body></html>`

const containerFieldsPage = `<!DOCTYPE html>
<html><body>
<ul>
	<li class="item"><h3>  קמח   כוסמין </h3><span class="cost">₪14</span><a href="/spelt">לפרטים</a><img src="/img/spelt.jpg"></li>
	<li class="item"><h3>אבג</h3><span class="cost">₪3</span></li>
	<li class="item"><div class="title">שמן זית כתית</div><a href="/oil">x</a></li>
</ul>
</body></html>`

const linkFirstPage = `<!DOCTYPE html>
<html><body>
<main>
	<table><tr><td><img src="/p/a.jpg"></td><td><a href="/choco-i1">שוקולד חלב אורגני</a></td></tr></table>
	<div><span><a href="/close-dialog">סגור</a></span></div>
	<div id="x"><a href="/tea">תה צמחים<img data-src="/p/tea.png"></a><span class="price">₪ 19.90</span></div>
	<a href="/">בית</a>
	<a href="/tea-again">תה צמחים</a>
</main>
</body></html>`

func TestLocateImageFirst(t *testing.T) {
	locator := NewLocator(DefaultOptions(), nil)

	products, err := locator.Locate(imageFirstPage, "חטיפים")
	require.NoError(t, err)

	assert.Equal(t, []models.Product{
		{
			Name:     "חטיף תירס אורגני",
			Price:    "12.90",
			Category: "חטיפים",
			URL:      "/corn-snack-i8085",
			Image:    "/productsimages/corn.jpg",
		},
		{
			Name:     "פריכיות אורז מלא ללא מלח",
			Price:    "8,50",
			Category: "חטיפים",
			URL:      "/rice-cakes",
			Image:    "/productsimages/rice.jpg",
		},
	}, products)
}

func TestLocateContainerFields(t *testing.T) {
	locator := NewLocator(DefaultOptions(), nil)

	snap, err := locator.Snapshot(containerFieldsPage, "קמחים")
	require.NoError(t, err)
	assert.Equal(t, `[class*="item"]`, snap.ContainerSelector)
	assert.Empty(t, locator.imageFirst(snap))

	products, err := locator.Locate(containerFieldsPage, "קמחים")
	require.NoError(t, err)

	assert.Equal(t, []models.Product{
		{
			Name:     "קמח כוסמין",
			Price:    "14",
			Category: "קמחים",
			URL:      "/spelt",
			Image:    "/img/spelt.jpg",
		},
		{
			Name:     "שמן זית כתית",
			Category: "קמחים",
			URL:      "/oil",
			Image:    "/img/spelt.jpg",
		},
	}, products)
}

func TestLocateLinkFirst(t *testing.T) {
	locator := NewLocator(DefaultOptions(), nil)

	snap, err := locator.Snapshot(linkFirstPage, "שתייה")
	require.NoError(t, err)
	assert.Zero(t, snap.Containers.Length())
	assert.Empty(t, snap.ContainerSelector)

	products, err := locator.Locate(linkFirstPage, "שתייה")
	require.NoError(t, err)

	assert.Equal(t, []models.Product{
		{
			Name:     "שוקולד חלב אורגני",
			Category: "שתייה",
			URL:      "/choco-i1",
			Image:    "/p/a.jpg",
		},
		{
			Name:     "תה צמחים",
			Price:    "19.90",
			Category: "שתייה",
			URL:      "/tea",
			Image:    "/p/tea.png",
		},
	}, products)
}

func TestSnapshotKeepsSelectorPriority(t *testing.T) {
	page := `<html><body><table>
		<tr id="ContentPlaceHolder1_products_rptproducts_tr_0"><td>a</td></tr>
		<tr id="ContentPlaceHolder1_products_rptproducts_tr_1"><td>b</td></tr>
	</table><div class="product">c</div></body></html>`

	snap, err := NewLocator(DefaultOptions(), nil).Snapshot(page, "x")
	require.NoError(t, err)
	assert.Equal(t, `tr[id*="rptproducts_tr"]`, snap.ContainerSelector)
	assert.Equal(t, 2, snap.Containers.Length())
}

func TestLocateRespectsImageScope(t *testing.T) {
	opts := DefaultOptions()
	opts.ImageScope = ImageScope{IDPrefixes: []string{"ContentPlaceHolder1_products_rptproducts_imgProductPic_1"}}

	products, err := NewLocator(opts, nil).Locate(imageFirstPage, "חטיפים")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "/productsimages/rice.jpg", products[0].Image)
}

func TestUniqueByName(t *testing.T) {
	in := []models.Product{
		{Name: "a", Image: "1"},
		{Name: "b", Image: "2"},
		{Name: "a", Image: "3"},
	}
	assert.Equal(t, []models.Product{{Name: "a", Image: "1"}, {Name: "b", Image: "2"}}, uniqueByName(in))
}

func TestLocateEmptyPage(t *testing.T) {
	products, err := NewLocator(DefaultOptions(), nil).Locate(`<html><body><p>ריק</p></body></html>`, "x")
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestLocateSkipsFailingCandidate(t *testing.T) {
	page := `<html><body>
	<div class="product"><h3>חטיף תירס</h3></div>
	<div class="product"><h3>broken</h3></div>
	<div class="product"><h3>קמח כוסמין</h3></div>
	</body></html>`

	locator := NewLocator(DefaultOptions(), nil)
	locator.strategies = []Strategy{{
		Name: "names",
		Extract: func(s *Snapshot) []models.Product {
			var products []models.Product
			s.Containers.Each(func(_ int, el *goquery.Selection) {
				locator.guard("container", func() {
					name := el.Find("h3").Text()
					if name == "broken" {
						var missing *goquery.Selection
						name = missing.Text()
					}
					products = append(products, models.Product{Name: name, Category: s.Category})
				})
			})
			return products
		},
	}}

	var products []models.Product
	require.NotPanics(t, func() {
		var err error
		products, err = locator.Locate(page, "מזווה")
		require.NoError(t, err)
	})

	assert.Equal(t, []models.Product{
		{Name: "חטיף תירס", Category: "מזווה"},
		{Name: "קמח כוסמין", Category: "מזווה"},
	}, products)
}

func TestGuardRecovers(t *testing.T) {
	locator := NewLocator(DefaultOptions(), nil)

	ran := false
	assert.NotPanics(t, func() {
		locator.guard("link", func() { panic("unexpected markup") })
		locator.guard("link", func() { ran = true })
	})
	assert.True(t, ran)
}
