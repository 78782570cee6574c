// Copyright 2024 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package instrument

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parca-dev/coverage-agent/pkg/bytecode"
)

func classAt(major uint16) bytecode.ClassInfo {
	return bytecode.ClassInfo{Name: "org.example.Foo", SuperName: "java/lang/Object", Version: bytecode.FormatVersion(major, 0)}
}

func TestSelect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		opts   Options
		class  bytecode.ClassInfo
		want   Strategy
		access Access
	}{
		{name: "sampling condy on 55", opts: Options{Mode: ModeSampling, CondyEnabled: true}, class: classAt(55), want: StrategySamplingCondy, access: AccessCondy},
		{name: "sampling condy on 61", opts: Options{Mode: ModeSampling, CondyEnabled: true}, class: classAt(61), want: StrategySamplingCondy, access: AccessCondy},
		{name: "sampling condy on 54", opts: Options{Mode: ModeSampling, CondyEnabled: true}, class: classAt(54), want: StrategySamplingLegacy, access: AccessFieldArray},
		{name: "sampling condy disabled", opts: Options{Mode: ModeSampling}, class: classAt(61), want: StrategySamplingLegacy, access: AccessFieldArray},
		{name: "sampling without version", opts: Options{Mode: ModeSampling, CondyEnabled: true}, class: bytecode.ClassInfo{Name: "a.B"}, want: StrategySamplingLegacy, access: AccessFieldArray},
		{name: "sampling ignores tracking", opts: Options{Mode: ModeSampling, TestTracking: true, Tracking: arrayTracking{}}, class: classAt(52), want: StrategySamplingLegacy, access: AccessFieldArray},
		{name: "tracing legacy", opts: Options{Mode: ModeTracing}, class: classAt(61), want: StrategyTracingLegacy, access: AccessFieldArray},
		{name: "tracing condy", opts: Options{Mode: ModeTracing, CondyEnabled: true}, class: classAt(55), want: StrategyTracingCondy, access: AccessCondy},
		{name: "tracing condy on 52", opts: Options{Mode: ModeTracing, CondyEnabled: true}, class: classAt(52), want: StrategyTracingLegacy, access: AccessFieldArray},
		{name: "tracked array", opts: Options{Mode: ModeTracing, CondyEnabled: true, TestTracking: true, Tracking: arrayTracking{}}, class: classAt(61), want: StrategyTracingTracked, access: AccessTrackingArray},
		{name: "tracked class data", opts: Options{Mode: ModeTracing, TestTracking: true, Tracking: classDataTracking{}}, class: classAt(52), want: StrategyTracingTracked, access: AccessClassData},
		{name: "tracking without mode", opts: Options{Mode: ModeTracing, CondyEnabled: true, TestTracking: true}, class: classAt(55), want: StrategyTracingCondy, access: AccessCondy},
		{name: "mode without tracking", opts: Options{Mode: ModeTracing, Tracking: arrayTracking{}}, class: classAt(52), want: StrategyTracingLegacy, access: AccessFieldArray},
	}
	for _, tt := range tests {
		d := Select(tt.opts, tt.class)
		require.Equal(t, tt.want, d.Strategy, tt.name)
		require.Equal(t, tt.access, d.Access, tt.name)
		require.Equal(t, tt.want == StrategyTracingTracked, d.Tracking != nil, tt.name)
		require.False(t, d.FilterPrivateConstructor, tt.name)
	}
}

func TestSelectPrivateConstructorWrapper(t *testing.T) {
	t.Parallel()

	d := Select(Options{Mode: ModeTracing, IgnorePrivateConstructorOfUtilClass: true}, classAt(52))
	require.True(t, d.FilterPrivateConstructor)
	require.Equal(t, StrategyTracingLegacy, d.Strategy)
}

func TestSelectSignatureFilters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		class bytecode.ClassInfo
		want  string
	}{
		{
			name:  "when mappings",
			class: bytecode.ClassInfo{Name: "a.B$WhenMappings", Access: bytecode.AccSynthetic | bytecode.AccFinal},
			want:  "kotlin-when-mappings",
		},
		{
			name:  "function reference",
			class: bytecode.ClassInfo{Name: "a.B$run$1", SuperName: "kotlin/jvm/internal/FunctionReferenceImpl"},
			want:  "kotlin-callable-reference",
		},
		{
			name:  "property reference",
			class: bytecode.ClassInfo{Name: "a.B$p$1", SuperName: "kotlin/jvm/internal/MutablePropertyReference1Impl"},
			want:  "kotlin-callable-reference",
		},
		{
			name:  "annotation",
			class: bytecode.ClassInfo{Name: "a.Marker", Access: bytecode.AccAnnotation | bytecode.AccInterface | bytecode.AccAbstract},
			want:  "annotation",
		},
		{
			name:  "lambda",
			class: bytecode.ClassInfo{Name: "a.B$run$2", SuperName: "kotlin/jvm/internal/Lambda"},
		},
		{
			name:  "non synthetic when mappings",
			class: bytecode.ClassInfo{Name: "a.B$WhenMappings"},
		},
	}
	for _, tt := range tests {
		d := Select(Options{Mode: ModeTracing}, tt.class)
		require.Equal(t, tt.want, d.SkippedBy, tt.name)
		require.Equal(t, tt.want != "", !d.Instrumented(), tt.name)
	}

	// Built once, shared by every call.
	require.Equal(t, SignatureFilters(), SignatureFilters())
	require.Same(t, &SignatureFilters()[0], &SignatureFilters()[0])
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	var m Mode
	require.NoError(t, m.UnmarshalText([]byte("tracing")))
	require.Equal(t, ModeTracing, m)
	require.Equal(t, "tracing", m.String())
	require.NoError(t, m.UnmarshalText([]byte("")))
	require.Equal(t, ModeSampling, m)
	require.Error(t, m.UnmarshalText([]byte("profiling")))

	tm, err := TrackingModeByName("")
	require.NoError(t, err)
	require.Nil(t, tm)
	tm, err = TrackingModeByName("class_data")
	require.NoError(t, err)
	require.Equal(t, AccessClassData, tm.Access("a.B"))
	_, err = TrackingModeByName("bitmap")
	require.Error(t, err)

	require.Equal(t, "tracing-condy", StrategyTracingCondy.String())
	require.True(t, StrategyTracingTracked.Tracing())
	require.False(t, StrategySamplingCondy.Tracing())
}
