package template

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/albertocavalcante/amdpack/internal/amd/deps"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want deps.Result
	}{
		{
			name: "x-magento-init with inline php values",
			src: `
<?php /** @var \Dotdigitalgroup\Email\Block\Adminhtml\Dashboard $block */?>
<div class="content-header">
    <?= $block->getChildHtml('adminhtml.system.config.switcher');?>
</div>
<script type="text/x-magento-init">
    {
        "*": {
            "Dotdigitalgroup_Email/js/dashboard":{
                "contactLink":"<?= $block->escapeUrl($block->getContactSyncLink()); ?>",
                "importerLink":"<?= $block->escapeUrl($block->getImporterLink()); ?>"
            }
        }
    }
</script>`,
			want: deps.Result{Deps: []string{"Dotdigitalgroup_Email/js/dashboard"}},
		},
		{
			name: "data-mage-init attribute",
			src: `
<div id="PayWithAmazon-<?= /* @noEscape */ $block->getJsId() ?>"
    class="login-with-amazon"
    data-mage-init='{"amazonButton": {"buttonType": "PwA"}}'>
</div>`,
			want: deps.Result{Deps: []string{"amazonButton"}},
		},
		{
			name: "data-bind mageInit",
			src: `<span data-bind="mageInit: {'dropdown':{'activeClass': '_active'}}" data-toggle="dropdown"></span>`,
			want: deps.Result{Deps: []string{"dropdown"}},
		},
		{
			name: "data-bind with several bindings",
			src: `<div id="opc-sidebar" data-bind="afterRender:setModalElement, mageInit: {
    'Magento_Ui/js/modal/modal':{
        'type': 'custom',
        'modalClass': 'opc-sidebar opc-summary-wrapper'
    }
}">`,
			want: deps.Result{Deps: []string{"Magento_Ui/js/modal/modal"}},
		},
		{
			name: "malformed data-bind",
			src: `<div id="opc-sidebar" data-bind="afterRender:setModalElement mageInit: {
    'Magento_Ui/js/modal/modal':{
        'type': 'custom'
    }
}">`,
			want: deps.Result{Deps: []string{"Magento_Ui/js/modal/modal"}},
		},
		{
			name: "php inside attribute values",
			src: `
<div class="field captcha no-label"
    data-captcha="<?= $block->escapeHtmlAttr($block->getFormId()) ?>"
    data-mage-init='{"captcha":{"url": "<?= $block->escapeUrl($block->getRefreshUrl()) ?>",
        "imageLoader": "<?= $block->escapeUrl($block->getViewFileUrl('images/loader-2.gif')) ?>"}}'>
</div>`,
			want: deps.Result{Deps: []string{"captcha"}},
		},
		{
			name: "function calls as binding values",
			src: `<form data-bind="mageInit: {
    'transparent':{
        'context': context(),
        'controller': getControllerName()
    }, 'validation':[]}"></form>`,
			want: deps.Result{Deps: []string{"transparent", "validation"}},
		},
		{
			name: "unquoted binding keys",
			src:  `<span data-bind="mageInit: {taxToggle: {itemTaxId : '#subtotal-item-tax-details'+$parents[2].item_id}}"></span>`,
			want: deps.Result{Deps: []string{"taxToggle"}},
		},
		{
			name: "php in selector and bare values",
			src: `
<script type="text/x-magento-init">
    {
        "#payment_form_<?= $block->escapeJs($block->getMethodCode()) ?>": {
            "Magento_AuthorizenetAcceptjs/js/payment-form": {
                "config": <?= /* @noEscape */ $block->getPaymentConfig() ?>
            }
        }
    }
</script>`,
			want: deps.Result{Deps: []string{"Magento_AuthorizenetAcceptjs/js/payment-form"}},
		},
		{
			name: "data-mage-init that is not json",
			src: `
<div data-mage-init='{
    "Magento_Backend/js/media-uploader" : {
        "maxFileSize": <?= $block->getFileSizeService()->getMaxFileSize() ?>,
        "maxWidth": <?= $block->getImageUploadMaxWidth() ?>
    }
}'></div>`,
			want: deps.Result{Deps: []string{"Magento_Backend/js/media-uploader"}},
		},
		{
			name: "deps and incomplete together",
			src: `
<div class="search-global" data-mage-init='{"globalSearch": {}}'>
    <input type="text"
        data-mage-init='<?= $this->helper('Magento\Framework\Json\Helper\Data')->jsonEncode($block->getWidgetInitOptions()) ?>'>
    <button title="<?= __('Search') ?>"></button>
</div>`,
			want: deps.Result{Deps: []string{"globalSearch"}, IncompleteAnalysis: true},
		},
		{
			name: "several php tags on one line",
			src:  `<div class="block <?= $class ?>" data-mage-init='{"relatedProducts":{"relatedCheckbox":".related.checkbox"}}' data-limit="<?= $limit ?>">`,
			want: deps.Result{Deps: []string{"relatedProducts"}},
		},
		{
			name: "php tags starting with <?php",
			src: `
<script type="text/x-magento-init">
    {
        "#product_addtocart_form": {
            "configurable": {
                "spConfig": <?= $block->getJsonConfig() ?>,
                "gallerySwitchStrategy": "<?php echo $block->getVar('gallery_switch_strategy',
                    'Magento_ConfigurableProduct') ?: 'replace'; ?>"
            }
        },
        "*" : {
            "Magento_ConfigurableProduct/js/catalog-add-to-cart": {}
        }
    }
</script>`,
			want: deps.Result{Deps: []string{"configurable", "Magento_ConfigurableProduct/js/catalog-add-to-cart"}},
		},
		{
			name: "synchronous require inside define",
			src: `
<script>
    define([], function() {
        var uiRegistry = require('uiRegistry');
        return uiRegistry;
    });
</script>`,
			want: deps.Result{Deps: []string{"uiRegistry"}},
		},
		{
			name: "async require",
			src:  `<script>require(['uiRegistry'], function(uiRegistry) {});</script>`,
			want: deps.Result{Deps: []string{"uiRegistry"}},
		},
		{
			name: "php conditionals in x-magento-init",
			src: `
<script type="text/x-magento-init">
    {
        "[data-gallery-role=gallery-placeholder]": {
            "mage/gallery/gallery": {
                "mixins":["magnifier/magnify"],
                "magnifierOpts": <?php echo $block->getMagnifier(); ?>,
                "options": {
                    "nav": "<?php echo $block->getVar("gallery/nav"); ?>",
                    <?php if (($block->getVar("gallery/loop"))): ?>
                        "loop": <?php echo $block->getVar("gallery/loop"); ?>,
                    <?php endif; ?>
                },
                "breakpoints": <?php echo $block->getBreakpoints(); ?>
            }
        }
    }
</script>`,
			want: deps.Result{Deps: []string{"mage/gallery/gallery"}},
		},
		{
			name: "multi-line php if in x-magento-init",
			src: `
<script type="text/x-magento-init">
    {
        ".product-add-form": {
            "slide": {
                "slideSpeed": 1500,
                "bundleOptionsContainer": ".product-add-form"
                <?php if ($block->isStartCustomization()): ?>
                ,"autostart": true
                <?php endif;?>
            }
        }
    }
</script>`,
			want: deps.Result{Deps: []string{"slide"}},
		},
		{
			name: "duplicates dropped",
			src: `<div data-mage-init='{"collapsible": {}}'></div>
<div data-mage-init='{"collapsible": {"active": true}, "tabs": {}}'></div>`,
			want: deps.Result{Deps: []string{"collapsible", "tabs"}},
		},
		{
			name: "other script types ignored",
			src:  `<script type="text/x-template">require(['nope'])</script>`,
			want: deps.Result{Deps: []string{}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(context.Background(), []byte(tt.src))
			if got.Deps == nil {
				got.Deps = []string{}
			}
			want := tt.want
			if want.Deps == nil {
				want.Deps = []string{}
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScanKeys(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		depth  int
		want   []string
		wantOK bool
	}{
		{name: "top level", src: `{"a": 1, b: {c: 2}}`, depth: 1, want: []string{"a", "b"}, wantOK: true},
		{name: "second level", src: `{"*": {"x": {}, 'y': []}, "#id": {z: 1}}`, depth: 2, want: []string{"x", "y", "z"}, wantOK: true},
		{name: "bare placeholders", src: `{"s": {"c": {"a": 1 __tpl__ ,"b": __tpl__ __tpl__}}}`, depth: 2, want: []string{"c"}, wantOK: true},
		{name: "ternary values", src: `{a: x ? y : z, b: 1}`, depth: 1, want: []string{"a", "b"}, wantOK: true},
		{name: "comments and braces in strings", src: "{/* {x: 1} */ \"a}\": 1, // b: 2\n c: '{'}", depth: 1, want: []string{"a}", "c"}, wantOK: true},
		{name: "unbalanced", src: `{"a": {`, depth: 1, wantOK: false},
		{name: "no object", src: `__tpl__`, depth: 1, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := scanKeys(tt.src, tt.depth)
			if ok != tt.wantOK {
				t.Fatalf("scanKeys() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("scanKeys() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
