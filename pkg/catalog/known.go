package catalog

import (
	"sync"

	"github.com/binary-install/protocdl/pkg/platform"
)

// Default returns the compiled-in catalog of verified protoc releases.
var Default = sync.OnceValue(func() *Catalog {
	return MustNew(knownReleases()...)
})

// knownReleases lists every release protocdl trusts, oldest first. New
// entries are produced by `protocdl hashes VERSION` and appended here.
func knownReleases() []Entry {
	return []Entry{
		Release("27.0", platform.LinuxX86_64, "e2bdce49564dbad4676023d174d9cdcf932238bc0b56a8349a5cb27bbafc26b0"),
		Release("27.0", platform.LinuxAArch64, "1e4b2d8b145afe99a36602f305165761e46d2525aa94cbb907e2e983be6717ac"),

		Release("27.1", platform.LinuxAArch64, "8809c2ec85368c6b6e9af161b6771a153aa92670a24adbe46dd34fa02a04df2f"),
		Release("27.1", platform.LinuxX86_64, "8970e3d8bbd67d53768fe8c2e3971bdd71e51cfe2001ca06dacad17258a7dae3"),
		Release("27.1", platform.OSXAArch64, "03b7af1bf469e7285dc51976ee5fa99412704dbd1c017105114852a37b165c12"),
		Release("27.1", platform.OSXX86_64, "8520d944f3a3890fa296a3b3b0d4bb18337337e2526bbbf1b507eeea3c2a1ec4"),

		Release("27.2", platform.LinuxAArch64, "ff4760bd4ae510d533e528cc6deb8e32e53f383f0ec01b0327233b4c2e8db314"),
		Release("27.2", platform.LinuxX86_64, "4a95e0ea2e51720af86a92f48d4997c8756923a9d0c58fd8a850657cd7479caf"),
		Release("27.2", platform.OSXAArch64, "877de17b5d2662b96e68a6e208cb1851437ab3e2b419c2ef5b7b873ffac5357d"),
		Release("27.2", platform.OSXX86_64, "abc25a236571612d45eb4b6b6e6abe3ac9aecc34b195f76f248786844f5619c7"),

		Release("27.3", platform.LinuxAArch64, "bdad36f3ad7472281d90568c4956ea2e203c216e0de005c6bd486f1920f2751c"),
		Release("27.3", platform.LinuxX86_64, "6dab2adab83f915126cab53540d48957c40e9e9023969c3e84d44bfb936c7741"),
		Release("27.3", platform.OSXAArch64, "b22116bd97cdbd7ea25346abe635a9df268515fe5ef5afa93cd9a68fc2513f84"),
		Release("27.3", platform.OSXX86_64, "ce282648fed0e7fbd6237d606dc9ec168dd2c1863889b04efa0b19c47da65d1b"),

		Release("28.2", platform.LinuxAArch64, "91d8253cdc0f0f0fc51c2b69c80677996632f525ad84504bfa5b4ee38ad3e49c"),
		Release("28.2", platform.LinuxX86_64, "2febfd42b59ce93a28eb789019a470a3dd0449619bc04f84dad1333da261dec1"),
		Release("28.2", platform.OSXAArch64, "7bb048f52841789d9ec61983be0ce4c9e4fb3bd9a143462820ba9a3be0a03797"),
		Release("28.2", platform.OSXX86_64, "232f07d12bf4806207a79ec2c7378301c52e6f2f7efdd21c0dd416f0bda103ec"),

		Release("29.0", platform.LinuxAArch64, "305f1be5ae7b2f39451870b312b45c1e0ba269901c83ba16d85f9f9d1441b348"),
		Release("29.0", platform.LinuxX86_64, "3c51065af3b9a606d9e18a1bf628143734ff4b9e69725d6459857430ba7a78df"),
		Release("29.0", platform.OSXAArch64, "b2b59f03b030c8a748623d682a8b5bc9cc099e4bcfd06b8964ce89ec065b3103"),
		Release("29.0", platform.OSXX86_64, "e7a1cffc82e21daa67833011449c70ddff1eba3b115934387e6e8141efab092f"),

		Release("29.2", platform.LinuxAArch64, "29cf483e2fb21827e5fac4964e35eae472a238e28c762f02fb17dcd93ff8b89f"),
		Release("29.2", platform.LinuxX86_64, "52e9e7ece55c7e30e7e8bbd254b4b21b408a5309bca826763c7124b696a132e9"),
		Release("29.2", platform.OSXAArch64, "0e153a38d6da19594c980e7f7cd3ea0ddd52c9da1068c03c0d8533369fbfeb20"),
		Release("29.2", platform.OSXX86_64, "ba2bd983b5f06ec38d663b602884a597dea3990a43803d7e153ed8f7c54269e1"),

		Release("29.3", platform.LinuxAArch64, "6427349140e01f06e049e707a58709a4f221ae73ab9a0425bc4a00c8d0e1ab32"),
		Release("29.3", platform.LinuxX86_64, "3e866620c5be27664f3d2fa2d656b5f3e09b5152b42f1bedbf427b333e90021a"),
		Release("29.3", platform.OSXAArch64, "2b8a3403cd097f95f3ba656e14b76c732b6b26d7f183330b11e36ef2bc028765"),
		Release("29.3", platform.OSXX86_64, "9a788036d8f9854f7b03c305df4777cf0e54e5b081e25bf15252da87e0e90875"),

		Release("30.0", platform.LinuxAArch64, "5ab347b71fb8a87139cec36aac4bd0ee3ac3f4f2af9fc68ebdf556e1c0a665c6"),
		Release("30.0", platform.LinuxX86_64, "2fbbc1818463d7e6d93c19a8dea839e663ca5f8579a52ef78c7688188335fa6c"),
		Release("30.0", platform.OSXAArch64, "7eb5b51d37bac410ba70ef91c404f90b1fabcb823712ff656582d34acc87ca74"),
		Release("30.0", platform.OSXX86_64, "96bf3a5fbeefd57d7dc0c20a2c7bb3f226ad84b79e5b509386824322017b9417"),

		Release("30.1", platform.LinuxAArch64, "e866d3dc4775e8032721915e83e3fb6e1ab4def7199a49b4f95c4d1f6cf4c03a"),
		Release("30.1", platform.LinuxX86_64, "5537e15ab0c0e610f809573948d3ec7d6ef387a07991e1c361a2a0e8cad983e5"),
		Release("30.1", platform.OSXAArch64, "03467cfd967de12a61406b7473e80204d3ae38f30f82855318186d696237e3b9"),
		Release("30.1", platform.OSXX86_64, "a4aeefd2f59ccce59cfa01a89fe58adb40bb9010f43adfca3c4fee7fd37ec2c5"),

		Release("30.2", platform.LinuxAArch64, "a3173ea338ef91b1605b88c4f8120d6c8ccf36f744d9081991d595d0d4352996"),
		Release("30.2", platform.LinuxX86_64, "327e9397c6fb3ea2a542513a3221334c6f76f7aa524a7d2561142b67b312a01f"),
		Release("30.2", platform.OSXAArch64, "92728c650f6cf2b6c37891ae04ef5bc2d4b5f32c5fbbd101eda623f90bb95f63"),
		Release("30.2", platform.OSXX86_64, "65675c3bb874a2d5f0c941e61bce6175090be25fe466f0ec2d4a6f5978333624"),

		Release("31.0", platform.LinuxAArch64, "999f4c023366b0b68c5c65272ead7877e47a2670245a79904b83450575da7e19"),
		Release("31.0", platform.LinuxX86_64, "24e2ed32060b7c990d5eb00d642fde04869d7f77c6d443f609353f097799dd42"),
		Release("31.0", platform.OSXAArch64, "1fbe70a8d646875f91b6fd57294f763145292b2c9e1374ab09d6e2124afdd950"),
		Release("31.0", platform.OSXX86_64, "0360d9b6d9e3d66958cf6274d8514da49e76d475fd0d712181dcc7e9e056f2c8"),
	}
}
