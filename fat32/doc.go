// Package fat32 implements writing FAT32 file system images from raw
// bytes, without any host file system driver: it computes the on-disk
// geometry, encodes the boot and FSInfo sectors, builds the file
// allocation tables and cluster chains, and places directory entries
// and file payloads into their clusters.
//
// Only construction is supported, and only the root directory is
// populated. Filenames are restricted to 8 characters + 3 characters
// for the file extension.
package fat32
