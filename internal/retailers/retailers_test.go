package retailers

import (
	"net/url"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-resolver/internal/models"
	"github.com/maltedev/product-resolver/internal/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := parser.Parse(html)
	require.NoError(t, err)
	return doc
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func requirePrice(t *testing.T, want float64, got *float64) {
	t.Helper()
	require.NotNil(t, got)
	assert.InDelta(t, want, *got, 1e-9)
}

func TestRegistryMatch(t *testing.T) {
	reg := Default()

	tests := []struct {
		host    string
		wantKey string
	}{
		{"www.asos.com", KeyASOS},
		{"WWW.ASOS.COM", KeyASOS},
		{"www.nike.com", KeyNike},
		{"www.zara.com", KeyZara},
		{"www.amazon.co.uk", KeyAmazonUK},
		{"www2.hm.com", KeyHM},
		{"www.jdsports.co.uk", KeyJDSports},
		{"www.jdsports.ie", KeyJDSports},
		{"www.amazon.de", ""},
		{"example.com", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			rt, ok := reg.Match(tt.host)
			if tt.wantKey == "" {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.wantKey, rt.Key)
			assert.NotNil(t, rt.Extract)
		})
	}
}

func TestRegistryFirstMatchWins(t *testing.T) {
	first := func(*goquery.Document, *url.URL) *models.ResolvedProduct { return nil }
	reg := NewRegistry(
		Retailer{Key: "first", Fragment: "Shop.", Extract: first},
		Retailer{Key: "second", Fragment: "shop.example", Extract: first},
	)
	reg.Register(Retailer{Key: "late", Fragment: "late.example", Extract: first})

	rt, ok := reg.Match("www.shop.example")
	require.True(t, ok)
	assert.Equal(t, "first", rt.Key)

	rt, ok = reg.Match("late.example")
	require.True(t, ok)
	assert.Equal(t, "late", rt.Key)

	assert.Equal(t, []string{"first", "second", "late"}, reg.Keys())
}

func TestASOS(t *testing.T) {
	u := mustURL(t, "https://www.asos.com/prd/123")

	t.Run("DOM price fills a JSON-LD block without offers", func(t *testing.T) {
		doc := mustParse(t, `<html><head>
			<script type="application/ld+json">{"@type":"Product","name":"Satin Midi Dress","sku":"1234","brand":{"name":"ASOS DESIGN"}}</script>
			<meta property="og:image" content="https://images.asos-media.com/og.jpg">
		</head><body>
			<h1 data-testid="product-title">DOM title</h1>
			<span data-testid="current-price">Now £49.99</span>
			<div data-testid="productColour"><p>Black</p></div>
			<select id="variantSelector">
				<option value="">Please select</option>
				<option value="201">UK 6</option>
				<option value="202">UK 8 - Out of stock</option>
			</select>
		</body></html>`)

		p := ASOS(doc, u)
		require.NotNil(t, p)
		assert.Equal(t, "Satin Midi Dress", p.Title)
		requirePrice(t, 49.99, p.Price)
		assert.Equal(t, "GBP", models.Deref(p.Currency))
		assert.Equal(t, "https://images.asos-media.com/og.jpg", models.Deref(p.ImageURL))

		trace, ok := p.Raw.(StoreTrace)
		require.True(t, ok)
		assert.Equal(t, "1234", models.Deref(trace.SKU))
		assert.Equal(t, "ASOS DESIGN", models.Deref(trace.Brand))
		assert.Equal(t, "Black", models.Deref(trace.Color))
		require.Len(t, trace.Sizes, 2)
		assert.Equal(t, models.SizeVariant{ID: "201", Label: "UK 6", Available: models.AvailabilityInStock}, trace.Sizes[0])
		assert.Equal(t, models.AvailabilityOutOfStock, trace.Sizes[1].Available)
	})

	t.Run("JSON-LD wins over the DOM", func(t *testing.T) {
		doc := mustParse(t, `<script type="application/ld+json">{"@type":"Product","name":"LD","image":"ld.jpg","offers":{"price":"30.00","priceCurrency":"EUR"}}</script>
			<h1 data-testid="product-title">DOM</h1>
			<img class="gallery-image" src="dom.jpg">
			<span data-testid="current-price">£49.99</span>`)

		p := ASOS(doc, u)
		require.NotNil(t, p)
		assert.Equal(t, "LD", p.Title)
		assert.Equal(t, "ld.jpg", models.Deref(p.ImageURL))
		requirePrice(t, 30, p.Price)
		assert.Equal(t, "EUR", models.Deref(p.Currency))
	})

	t.Run("screen reader price and gallery image", func(t *testing.T) {
		doc := mustParse(t, `<h1>Plain heading</h1>
			<img class="gallery-image" src="dom.jpg">
			<span data-testid="price-screenreader-only-text">Price: £12.00</span>`)

		p := ASOS(doc, u)
		require.NotNil(t, p)
		assert.Equal(t, "Plain heading", p.Title)
		assert.Equal(t, "dom.jpg", models.Deref(p.ImageURL))
		requirePrice(t, 12, p.Price)
	})

	t.Run("no signal", func(t *testing.T) {
		assert.Nil(t, ASOS(mustParse(t, `<p>Page not found</p>`), u))
	})
}

func TestZara(t *testing.T) {
	doc := mustParse(t, `<html><body>
		<h1 data-qa-qualifier="product-detail-info-name">WOOL BLEND COAT</h1>
		<span class="money-amount__main">89,95 EUR</span>
		<div class="product-detail-view__main-image"><img src="https://static.zara.net/coat.jpg"></div>
		<p data-qa-qualifier="product-detail-info-color">Camel | 0706/041</p>
	</body></html>`)

	p := Zara(doc, mustURL(t, "https://www.zara.com/es/en/coat-p0706.html"))
	require.NotNil(t, p)
	assert.Equal(t, "WOOL BLEND COAT", p.Title)
	requirePrice(t, 89.95, p.Price)
	assert.Equal(t, "EUR", models.Deref(p.Currency))
	assert.Equal(t, "https://static.zara.net/coat.jpg", models.Deref(p.ImageURL))

	trace := p.Raw.(StoreTrace)
	assert.Equal(t, "Camel | 0706/041", models.Deref(trace.Color))

	assert.Nil(t, Zara(mustParse(t, `<div></div>`), nil))
}

func TestHM(t *testing.T) {
	u := mustURL(t, "https://www2.hm.com/en_gb/productpage.0970818001.html")

	doc := mustParse(t, `<script type="application/ld+json">{"@type":"Product","name":"Relaxed Fit Hoodie","image":["a.jpg"],"sku":"0970818001",
		"offers":[{"price":24.99,"priceCurrency":"GBP","availability":"https://schema.org/InStock"}]}</script>`)
	p := HM(doc, u)
	require.NotNil(t, p)
	assert.Equal(t, "Relaxed Fit Hoodie", p.Title)
	requirePrice(t, 24.99, p.Price)
	assert.Equal(t, "GBP", models.Deref(p.Currency))
	trace := p.Raw.(StoreTrace)
	assert.Equal(t, models.AvailabilityInStock, trace.Availability)
	assert.Equal(t, "0970818001", models.Deref(trace.SKU))

	t.Run("DOM fallback for a partial block", func(t *testing.T) {
		doc := mustParse(t, `<script type="application/ld+json">{"@type":"Product"}</script>
			<h1>Hoodie</h1><span data-testid="price">£19.99</span>`)
		p := HM(doc, u)
		require.NotNil(t, p)
		assert.Equal(t, "Hoodie", p.Title)
		requirePrice(t, 19.99, p.Price)
	})

	t.Run("no JSON-LD", func(t *testing.T) {
		assert.Nil(t, HM(mustParse(t, `<h1>Hoodie</h1><span data-testid="price">£19.99</span>`), u))
	})
}

const nikeNextData = `<script id="__NEXT_DATA__" type="application/json">{
	"props":{"pageProps":{
		"locale":{"currency":"GBP"},
		"selectedProduct":{
			"id":"abc-123",
			"styleColor":"DV0788-001",
			"statusModifier":"BUYABLE",
			"productInfo":{"title":"Nike Pegasus 41","subtitle":"Men's Road Running Shoes"},
			"prices":{"initialPrice":129.99,"currentPrice":"n/a"},
			"contentImages":[
				{"cardType":"video","properties":{"portrait":{"url":"video.mp4"}}},
				{"cardType":"image","properties":{"squarish":{"url":"https://static.nike.com/sq.png"}}}
			],
			"sizes":[
				{"label":"UK 8","localizedLabel":"EU 42.5","status":"ACTIVE"},
				{"label":"UK 9","status":"OOS"},
				{"label":"UK 10","status":"HOLD"}
			]
		},
		"colorwayImages":[
			{"styleColor":"DV0788-001","colorDescription":"Black/White","portraitImg":"p1.png","pdpUrl":"https://www.nike.com/t/1"},
			{"styleColor":"DV0788-100","squarishImg":"s2.png"}
		]
	}}}</script>`

func TestNike(t *testing.T) {
	u := mustURL(t, "https://www.nike.com/gb/t/pegasus-41")

	p := Nike(mustParse(t, nikeNextData), u)
	require.NotNil(t, p)
	assert.Equal(t, "Nike Pegasus 41 Men's Road Running Shoes", p.Title)
	assert.Equal(t, "https://static.nike.com/sq.png", models.Deref(p.ImageURL))
	requirePrice(t, 129.99, p.Price)
	assert.Equal(t, "GBP", models.Deref(p.Currency))

	trace, ok := p.Raw.(NikeTrace)
	require.True(t, ok)
	assert.Equal(t, "DV0788-001", models.Deref(trace.StyleColor))
	assert.Equal(t, "abc-123", models.Deref(trace.ProductID))
	assert.Equal(t, models.AvailabilityInStock, trace.Available)

	require.Len(t, trace.Sizes, 3)
	assert.Equal(t, models.AvailabilityInStock, trace.Sizes[0].Available)
	assert.Equal(t, "EU 42.5", models.Deref(trace.Sizes[0].LocalizedLabel))
	assert.Equal(t, models.AvailabilityOutOfStock, trace.Sizes[1].Available)
	assert.Equal(t, models.AvailabilityUnknown, trace.Sizes[2].Available)

	require.Len(t, trace.ColorVariants, 2)
	assert.Equal(t, "Black/White", models.Deref(trace.ColorVariants[0].ColorDescription))
	assert.Equal(t, "p1.png", models.Deref(trace.ColorVariants[0].ImageURL))
	assert.Equal(t, "s2.png", models.Deref(trace.ColorVariants[1].ImageURL))
	assert.Nil(t, trace.ColorVariants[1].PDPURL)
}

func TestNikeProductGroups(t *testing.T) {
	doc := mustParse(t, `<script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{
		"productGroups":[{"products":{"X":null,"Z":{"productInfo":{"fullTitle":"Air Max 90"},
			"prices":{"currentPrice":110,"currency":"EUR"},"statusModifier":"SOLD_OUT"},"A":{"productInfo":{"fullTitle":"Second"}}}}],
		"colorwayImages":[{"portraitImg":"cw.png"}]
	}}}</script>`)

	p := Nike(doc, nil)
	require.NotNil(t, p)
	assert.Equal(t, "Air Max 90", p.Title)
	requirePrice(t, 110, p.Price)
	assert.Equal(t, "EUR", models.Deref(p.Currency))
	assert.Equal(t, "cw.png", models.Deref(p.ImageURL))
	assert.Equal(t, models.AvailabilityOutOfStock, p.Raw.(NikeTrace).Available)
}

func TestNikeNoSignal(t *testing.T) {
	assert.Nil(t, Nike(mustParse(t, `<p>no state</p>`), nil))
	assert.Nil(t, Nike(mustParse(t, `<script id="__NEXT_DATA__">{"props":{"pageProps":{}}}</script>`), nil))
	assert.Nil(t, Nike(mustParse(t, `<script id="__NEXT_DATA__">{"props":{"pageProps":{"selectedProduct":{}}}}</script>`), nil))
}

func TestJDSports(t *testing.T) {
	doc := mustParse(t, `<html><head>
		<script>
			var dataObject = {};
			var ProductType = {
				Id: '19384756',
				Name: 'Nike Air Force 1 \'07',
				Description: "White, clean &amp; classic",
				UnitPrice: 109.99,
				Brand: 'Nike',
				Colour: 'White',
				PrimaryImage: 'https://i8.amplience.net/af1.jpg',
				IsDiscounted: false
			};
		</script>
	</head><body>
		<div id="productSizeStock">
			<button data-size="7" data-stock="1" data-sku="SKU7" data-upc="0001" data-currency="GBP">7</button>
			<button data-size="8" data-stock="0" data-sku="SKU8">8</button>
			<button data-size="" data-stock="1"> </button>
		</div>
	</body></html>`)

	p := JDSports(doc, mustURL(t, "https://www.jdsports.co.uk/product/white-nike-air-force-1/19384756/"))
	require.NotNil(t, p)
	assert.Equal(t, "Nike Air Force 1 '07", p.Title)
	requirePrice(t, 109.99, p.Price)
	assert.Equal(t, "GBP", models.Deref(p.Currency))
	assert.Equal(t, "https://i8.amplience.net/af1.jpg", models.Deref(p.ImageURL))

	trace, ok := p.Raw.(JDTrace)
	require.True(t, ok)
	assert.Equal(t, "19384756", models.Deref(trace.ProductID))
	assert.Equal(t, "White, clean & classic", models.Deref(trace.Description))
	assert.Equal(t, "Nike", models.Deref(trace.Brand))
	require.NotNil(t, trace.IsDiscounted)
	assert.False(t, *trace.IsDiscounted)
	assert.Equal(t, models.AvailabilityInStock, trace.Availability)

	require.Len(t, trace.Sizes, 2)
	assert.Equal(t, "7", trace.Sizes[0].Label)
	assert.Equal(t, "SKU7", models.Deref(trace.Sizes[0].SKU))
	assert.Equal(t, "0001", models.Deref(trace.Sizes[0].UPC))
	assert.Equal(t, models.AvailabilityOutOfStock, trace.Sizes[1].Available)
	assert.Nil(t, trace.Sizes[1].UPC)
}

func TestJDSportsDOMOnly(t *testing.T) {
	doc := mustParse(t, `<h1 itemprop="name">Adidas Samba OG</h1>
		<span data-e2e="product-price" content="90.00">€90</span>
		<div id="itemOptions" data-stock="false"></div>
		<div id="gallery"><img src="samba.jpg"></div>`)

	p := JDSports(doc, nil)
	require.NotNil(t, p)
	assert.Equal(t, "Adidas Samba OG", p.Title)
	requirePrice(t, 90, p.Price)
	assert.Nil(t, p.Currency, "content attribute has no symbol")
	assert.Equal(t, "samba.jpg", models.Deref(p.ImageURL))
	assert.Equal(t, models.AvailabilityOutOfStock, p.Raw.(JDTrace).Availability)
}

func TestJDSportsMalformedScript(t *testing.T) {
	doc := mustParse(t, `<script>var ProductType = { Name: 'Unclosed, UnitPrice: abc</script>`)
	assert.Nil(t, JDSports(doc, nil))
}

func TestJDSportsKeyInsideQuotedValue(t *testing.T) {
	doc := mustParse(t, `<script>
		var ProductType = {
			Description: "Soft, Name: Fake Shoe",
			Meta: { Name: 'Nested' },
			Name: "Real Shoe",
			UnitPrice: 45.00
		};
	</script>`)

	p := JDSports(doc, nil)
	require.NotNil(t, p)
	assert.Equal(t, "Real Shoe", p.Title)
	requirePrice(t, 45, p.Price)
	assert.Equal(t, "Soft, Name: Fake Shoe", models.Deref(p.Raw.(JDTrace).Description))
}

func TestJSFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		want map[string]string
	}{
		{
			name: "bare and quoted values",
			body: ` Id: '1', UnitPrice: 9.5, IsDiscounted: true `,
			want: map[string]string{"Id": "'1'", "UnitPrice": "9.5", "IsDiscounted": "true"},
		},
		{
			name: "escaped quote inside value",
			body: `Name: 'It\'s, fine', Brand: "Nike"`,
			want: map[string]string{"Name": `'It\'s, fine'`, "Brand": `"Nike"`},
		},
		{
			name: "nested object stays one value",
			body: `Meta: {Name: 'x', Id: 2}, Id: 3`,
			want: map[string]string{"Meta": "{Name: 'x', Id: 2}", "Id": "3"},
		},
		{
			name: "quoted keys and first occurrence wins",
			body: `"Name": 'first', Name: 'second'`,
			want: map[string]string{"Name": "'first'"},
		},
		{
			name: "entries without a colon are skipped",
			body: `junk, Colour: 'Red',`,
			want: map[string]string{"Colour": "'Red'"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, jsFields(tt.body))
		})
	}
}

func TestJSLiterals(t *testing.T) {
	assert.Equal(t, `say "hi"`, models.Deref(jsString(`"say \"hi\""`)))
	assert.Equal(t, `a\b`, models.Deref(jsString(`'a\\b'`)))
	assert.Equal(t, "Tom & Jerry", models.Deref(jsString(`'Tom &amp; Jerry'`)))
	assert.Nil(t, jsString(`unquoted`))
	assert.Nil(t, jsString(`'mismatched"`))
	assert.Nil(t, jsString(`''`))

	requirePrice(t, 1299.5, jsNumber(" 1299.50 "))
	assert.Nil(t, jsNumber("null"))
	assert.Nil(t, jsBool("maybe"))
	require.NotNil(t, jsBool(" TRUE "))
	assert.True(t, *jsBool(" TRUE "))
}

func TestAmazonUK(t *testing.T) {
	doc := mustParse(t, `<html><body>
		<span id="productTitle">  Levi's Men's 501 Original Fit Jeans  </span>
		<a id="bylineInfo">Visit the Levi's Store</a>
		<div id="wayfinding-breadcrumbs_feature_div"><ul><li><span class="a-list-item">Fashion</span></li><li><span class="a-list-item">Jeans</span></li></ul></div>
		<div id="corePrice_feature_div"><span class="a-price"><span class="a-offscreen">£54.00</span></span></div>
		<img id="landingImage" src="small.jpg" data-old-hires="https://m.media-amazon.com/large.jpg">
		<div id="availability"><span>In stock</span></div>
		<div id="variation_color_name"><span class="selection">Stonewash</span></div>
		<div class="a-fixed-left-grid-inner">
			<div class="a-col-left"><span class="a-color-base">Material composition</span></div>
			<div class="a-col-right"><span class="a-color-base">99% Cotton, 1% Elastane</span></div>
		</div>
		<select id="native_dropdown_selected_size_name">
			<option value="-1">Select</option>
			<option value="0,B0018OR118" class="dropdownAvailable">30W x 32L</option>
			<option value="1,B0018OR119" class="dropdownUnavailable">32W x 32L</option>
		</select>
	</body></html>`)

	p := AmazonUK(doc, mustURL(t, "https://www.amazon.co.uk/Levis-Original-Jeans/dp/B0018OR0ZQ/ref=sr_1_1"))
	require.NotNil(t, p)
	assert.Equal(t, "Levi's Men's 501 Original Fit Jeans", p.Title)
	requirePrice(t, 54, p.Price)
	assert.Equal(t, "GBP", models.Deref(p.Currency))
	assert.Equal(t, "https://m.media-amazon.com/large.jpg", models.Deref(p.ImageURL))

	trace, ok := p.Raw.(AmazonTrace)
	require.True(t, ok)
	assert.Equal(t, "B0018OR0ZQ", models.Deref(trace.ASIN))
	assert.Equal(t, "Levi's", models.Deref(trace.Brand))
	assert.Equal(t, "Jeans", models.Deref(trace.Category))
	assert.Equal(t, "99% Cotton, 1% Elastane", models.Deref(trace.Material))
	assert.Equal(t, "Stonewash", models.Deref(trace.Color))
	assert.Equal(t, models.AvailabilityInStock, trace.Availability)
	require.Len(t, trace.Sizes, 2)
	assert.Equal(t, models.AvailabilityInStock, trace.Sizes[0].Available)
	assert.Equal(t, models.AvailabilityOutOfStock, trace.Sizes[1].Available)
}

func TestAmazonUKSplitPrice(t *testing.T) {
	doc := mustParse(t, `<span id="productTitle">Kettle</span>
		<span class="a-price"><span class="a-price-symbol">£</span><span class="a-price-whole">1,249.</span><span class="a-price-fraction">99</span></span>
		<div id="availability">Currently unavailable.</div>`)

	p := AmazonUK(doc, mustURL(t, "https://www.amazon.co.uk/gp/product/B07XYZ1234"))
	require.NotNil(t, p)
	requirePrice(t, 1249.99, p.Price)
	assert.Equal(t, "GBP", models.Deref(p.Currency))

	trace := p.Raw.(AmazonTrace)
	assert.Equal(t, "B07XYZ1234", models.Deref(trace.ASIN))
	assert.Equal(t, models.AvailabilityOutOfStock, trace.Availability)
}
