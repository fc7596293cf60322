package gpures

import "testing"

func TestFormatInfo(t *testing.T) {
	tests := []struct {
		f          Format
		name       string
		bytes      uint32
		channels   uint32
		block      uint32
		depth      bool
		compressed bool
	}{
		{FormatR8Unorm, "r8_unorm", 1, 1, 1, false, false},
		{FormatRGBA8Unorm, "rgba8_unorm", 4, 4, 1, false, false},
		{FormatRGB32Float, "rgb32_float", 12, 3, 1, false, false},
		{FormatD32Float, "d32_float", 4, 1, 1, true, false},
		{FormatD24UnormS8Uint, "d24_unorm_s8_uint", 4, 2, 1, true, false},
		{FormatBC1Unorm, "bc1_unorm", 8, 4, 4, false, true},
		{FormatBC7Unorm, "bc7_unorm", 16, 4, 4, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fi := tt.f.Info()
			if fi.Name != tt.name || tt.f.String() != tt.name {
				t.Errorf("name = %q, want %q", fi.Name, tt.name)
			}
			if fi.BytesPerBlock != tt.bytes {
				t.Errorf("BytesPerBlock = %d, want %d", fi.BytesPerBlock, tt.bytes)
			}
			if fi.ChannelCount != tt.channels {
				t.Errorf("ChannelCount = %d, want %d", fi.ChannelCount, tt.channels)
			}
			if fi.BlockWidth != tt.block || fi.BlockHeight != tt.block {
				t.Errorf("block = %dx%d, want %d", fi.BlockWidth, fi.BlockHeight, tt.block)
			}
			if fi.IsDepthStencil() != tt.depth {
				t.Errorf("IsDepthStencil() = %v, want %v", fi.IsDepthStencil(), tt.depth)
			}
			if fi.Compressed != tt.compressed {
				t.Errorf("Compressed = %v, want %v", fi.Compressed, tt.compressed)
			}
		})
	}
}

func TestFormatUnknown(t *testing.T) {
	f := Format(250)
	if f.String() != "Unknown(250)" {
		t.Errorf("String() = %q", f.String())
	}
	if f.Info().Format != FormatUndefined {
		t.Error("unknown format should describe as undefined")
	}
	if DefaultSupportedStates(f) != 0 || DefaultSupportedStates(FormatUndefined) != 0 {
		t.Error("unknown formats should support no states")
	}
}

func TestHasEqualChannelBits(t *testing.T) {
	if !FormatRGBA16Float.Info().HasEqualChannelBits() {
		t.Error("rgba16_float channels are equal")
	}
	if FormatRGB10A2Unorm.Info().HasEqualChannelBits() {
		t.Error("rgb10a2_unorm channels differ")
	}
}

func TestDefaultSupportedStates(t *testing.T) {
	tests := []struct {
		f    Format
		has  []ResourceState
		lack []ResourceState
	}{
		{FormatRGBA8Unorm,
			[]ResourceState{StateShaderResource, StateRenderTarget, StateUnorderedAccess, StatePresent},
			nil},
		{FormatRGBA8UnormSrgb,
			[]ResourceState{StateShaderResource, StateRenderTarget, StatePresent},
			[]ResourceState{StateUnorderedAccess}},
		{FormatBGRA8Unorm,
			[]ResourceState{StateRenderTarget},
			[]ResourceState{StateUnorderedAccess}},
		{FormatR8Snorm,
			[]ResourceState{StateShaderResource, StateUnorderedAccess},
			[]ResourceState{StateRenderTarget}},
		{FormatRGB32Float,
			[]ResourceState{StateShaderResource},
			[]ResourceState{StateRenderTarget, StateUnorderedAccess}},
		{FormatD32Float,
			[]ResourceState{StateDepthRead, StateDepthWrite, StateShaderResource},
			[]ResourceState{StateRenderTarget, StateUnorderedAccess}},
		{FormatBC3Unorm,
			[]ResourceState{StateShaderResource, StateCopyDestination},
			[]ResourceState{StateRenderTarget, StateUnorderedAccess, StateDepthWrite}},
		{FormatR32Typeless,
			[]ResourceState{StateCopySource},
			[]ResourceState{StateShaderResource}},
	}
	for _, tt := range tests {
		t.Run(tt.f.String(), func(t *testing.T) {
			set := DefaultSupportedStates(tt.f)
			for _, s := range tt.has {
				if !set.Has(s) {
					t.Errorf("%s missing %s", set, s)
				}
			}
			for _, s := range tt.lack {
				if set.Has(s) {
					t.Errorf("%s should not contain %s", set, s)
				}
			}
		})
	}
}

func TestMaxMipCount(t *testing.T) {
	tests := []struct {
		w, h, d uint32
		want    uint32
	}{
		{1, 1, 1, 1},
		{256, 256, 1, 9},
		{256, 1, 1, 9},
		{300, 17, 1, 9},
		{4, 4, 64, 7},
		{0, 0, 0, 1},
	}
	for _, tt := range tests {
		if got := MaxMipCount(tt.w, tt.h, tt.d); got != tt.want {
			t.Errorf("MaxMipCount(%d, %d, %d) = %d, want %d", tt.w, tt.h, tt.d, got, tt.want)
		}
	}
}
