package integration

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// GeneratedSKUPrefix prefixes SKUs synthesized for ERP records without a code
const GeneratedSKUPrefix = "EXT-"

// GeneratedSKU returns the fallback SKU of an ERP record
func GeneratedSKU(externalID int64) string {
	return fmt.Sprintf("%s%d", GeneratedSKUPrefix, externalID)
}

// ResolveSKU returns the code when present, else the generated fallback.
// The boolean reports whether the SKU was generated.
func ResolveSKU(code string, externalID int64) (string, bool) {
	code = strings.TrimSpace(code)
	if code != "" {
		return code, false
	}
	return GeneratedSKU(externalID), true
}

// KilogramsToGrams converts an ERP weight to grams.
// Zero and absent weights both mean "no weight set" and return nil.
func KilogramsToGrams(kg *float64) (*int, error) {
	if kg == nil || *kg == 0 {
		return nil, nil
	}
	if *kg < 0 || math.IsNaN(*kg) || math.IsInf(*kg, 0) {
		return nil, fmt.Errorf("%w: weight %v", ErrMalformedProduct, *kg)
	}
	grams := int(math.Round(*kg * 1000))
	return &grams, nil
}

// Slugify builds a URL handle: accents folded, lowercased, every run of
// non-alphanumeric characters replaced by one hyphen, hyphens trimmed.
func Slugify(s string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}

// variantTitle strips the "[code] " prefix the ERP puts in variant display names
func variantTitle(displayName, code string) string {
	title := strings.TrimSpace(displayName)
	if code != "" {
		title = strings.TrimSpace(strings.TrimPrefix(title, "["+code+"] "))
	}
	return title
}

// Normalize converts one ERP product into a local product payload.
//
// match is the local product already tagged with the product's external id,
// or nil. When given, the payload carries its local id and each variant the
// id of the local variant with the same SKU. reservedHandles holds handles of
// soft-deleted prior imports; a colliding handle gets the external id appended.
func Normalize(product *ExternalProduct, match *LocalProduct, reservedHandles map[string]struct{}) (*ProductPayload, error) {
	if product == nil || product.ID <= 0 {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedProduct)
	}

	externalID := product.ExternalIDString()
	title := strings.TrimSpace(product.DisplayName)
	if title == "" {
		title = strings.TrimSpace(product.Name)
	}
	if title == "" {
		return nil, fmt.Errorf("%w: product %s has no name", ErrMalformedProduct, externalID)
	}

	handle := Slugify(title)
	if handle == "" {
		handle = "product"
	}
	if _, taken := reservedHandles[handle]; taken {
		handle = handle + "-" + externalID
	}

	weight, err := KilogramsToGrams(product.WeightKg)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", externalID, err)
	}

	payload := &ProductPayload{
		ExternalID:     externalID,
		Title:          title,
		Handle:         handle,
		Description:    strings.TrimSpace(product.Description),
		Image:          productImage(product),
		WeightGrams:    weight,
		SourceQuantity: product.QtyAvailable,
	}

	if product.VariantCount > 1 {
		if err := normalizeVariants(product, payload); err != nil {
			return nil, fmt.Errorf("product %s: %w", externalID, err)
		}
	} else {
		if err := normalizeDefaultVariant(product, payload); err != nil {
			return nil, fmt.Errorf("product %s: %w", externalID, err)
		}
	}

	if match != nil && !match.IsDeleted() {
		payload.LocalID = match.ID
		for i := range payload.Variants {
			if local := match.VariantBySKU(payload.Variants[i].SKU); local != nil {
				payload.Variants[i].LocalID = local.ID
			}
		}
	}

	return payload, nil
}

func productImage(product *ExternalProduct) string {
	if product.Image != "" {
		return product.Image
	}
	for _, v := range product.Variants {
		if v.Image != "" {
			return v.Image
		}
	}
	return ""
}

func normalizeVariants(product *ExternalProduct, payload *ProductPayload) error {
	if len(product.AttributeLines) == 0 {
		return fmt.Errorf("%w: %d variants but no attribute lines", ErrMalformedProduct, product.VariantCount)
	}
	if len(product.Variants) == 0 {
		return fmt.Errorf("%w: %d variants announced but none read", ErrMalformedProduct, product.VariantCount)
	}

	options := make([]OptionPayload, 0, len(product.AttributeLines))
	known := make(map[string]struct{}, len(product.AttributeLines))
	for _, line := range product.AttributeLines {
		name := strings.TrimSpace(line.AttributeName)
		if name == "" {
			return fmt.Errorf("%w: attribute line %d has no attribute", ErrMalformedProduct, line.ID)
		}
		if len(line.Values) == 0 {
			return fmt.Errorf("%w: attribute %q has no values", ErrMalformedProduct, name)
		}
		options = append(options, OptionPayload{Title: name, Values: append([]string(nil), line.Values...)})
		known[name] = struct{}{}
	}
	payload.Options = options

	variants := make([]VariantPayload, 0, len(product.Variants))
	for i := range product.Variants {
		v := &product.Variants[i]

		selection := make(map[string]string, len(options))
		for _, value := range v.Values {
			if _, ok := known[value.AttributeName]; !ok {
				return fmt.Errorf("%w: variant %d uses unknown attribute %q", ErrMalformedProduct, v.ID, value.AttributeName)
			}
			selection[value.AttributeName] = value.Name
		}
		// Unassigned options take their first value so the variant stays complete
		for _, opt := range options {
			if _, ok := selection[opt.Title]; !ok {
				selection[opt.Title] = opt.Values[0]
			}
		}

		price, err := variantPrice(product, v)
		if err != nil {
			return fmt.Errorf("variant %d: %w", v.ID, err)
		}

		weightKg := v.WeightKg
		if weightKg == nil {
			weightKg = product.WeightKg
		}
		weight, err := KilogramsToGrams(weightKg)
		if err != nil {
			return fmt.Errorf("variant %d: %w", v.ID, err)
		}

		sku, generated := ResolveSKU(v.Code, v.ID)
		title := variantTitle(v.DisplayName, v.Code)
		if title == "" {
			title = payload.Title
		}

		variants = append(variants, VariantPayload{
			ExternalID:      ExternalIDString(v.ID),
			Title:           title,
			SKU:             sku,
			GeneratedSKU:    generated,
			Options:         selection,
			Prices:          []Price{price},
			WeightGrams:     weight,
			ManageInventory: true,
			SourceQuantity:  v.QtyAvailable,
		})
	}
	payload.Variants = variants
	return nil
}

func normalizeDefaultVariant(product *ExternalProduct, payload *ProductPayload) error {
	currency := product.Currency.CurrencyCode()
	if currency == "" {
		return ErrMissingCurrency
	}

	sku, generated := ResolveSKU(product.DefaultCode, product.ID)
	payload.Options = []OptionPayload{{Title: DefaultOptionTitle, Values: []string{DefaultOptionTitle}}}
	payload.Variants = []VariantPayload{{
		ExternalID:      product.ExternalIDString(),
		Title:           DefaultOptionTitle,
		SKU:             sku,
		GeneratedSKU:    generated,
		Options:         map[string]string{DefaultOptionTitle: DefaultOptionTitle},
		Prices:          []Price{{Amount: product.ListPrice, CurrencyCode: currency}},
		WeightGrams:     payload.WeightGrams,
		ManageInventory: true,
		SourceQuantity:  product.QtyAvailable,
	}}
	return nil
}

func variantPrice(product *ExternalProduct, v *ExternalVariant) (Price, error) {
	amount := product.ListPrice
	if v.Price != nil {
		amount = *v.Price
	}
	currency := v.Currency.CurrencyCode()
	if currency == "" {
		currency = product.Currency.CurrencyCode()
	}
	if currency == "" {
		return Price{}, ErrMissingCurrency
	}
	return Price{Amount: amount, CurrencyCode: currency}, nil
}
